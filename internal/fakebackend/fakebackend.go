/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package fakebackend simulates the lock indexing backend: locks submitted on
// chain only become visible after they are resynced, and optionally only after
// a number of further reads.
package fakebackend

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jerry-enebeli/lockverify/model"
)

// Options shape how eventually consistent the simulated backend is.
type Options struct {
	// ResyncFailures is how many resync calls answer 503 before the backend
	// starts confirming.
	ResyncFailures int
	// IndexLag is how many lock reads still miss a lock after it was resynced.
	IndexLag int
	// NeverIndex keeps every lock out of the read path, even after resync.
	NeverIndex bool
	// LocksStatus, when set, is returned by every lock read instead of 200.
	LocksStatus int
}

type entry struct {
	contract string
	record   model.LockRecord
	indexed  bool
	lag      int
}

// Server is an in-memory backend. It is safe for concurrent use.
type Server struct {
	mu             sync.Mutex
	opts           Options
	locks          map[string]*entry
	resyncFailures int
	resyncCalls    int
	locksCalls     int
	nextID         int64
	router         *gin.Engine
}

func New(opts Options) *Server {
	s := &Server{
		opts:           opts,
		locks:          make(map[string]*entry),
		resyncFailures: opts.ResyncFailures,
		nextID:         1000,
	}
	s.router = s.routes()
	return s
}

func lockKey(contract string, id model.LockID) string {
	return strings.ToLower(contract) + "/" + id.String()
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("lockverify-fake-backend"))

	r.PUT("/api/app/locks/:contract/:lockId", s.resyncLock)
	r.GET("/api/app/mylocks/:wallet", s.getLocks)
	r.POST("/_fake/locks", s.createLock)
	return r
}

// Handler exposes the simulated API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// AddLock records a lock that exists on chain but has not been indexed yet.
func (s *Server) AddLock(contract string, record model.LockRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[lockKey(contract, record.Event.LockDepositID)] = &entry{contract: contract, record: record}
}

// AddIndexedLock records a lock that the backend already serves.
func (s *Server) AddIndexedLock(contract string, record model.LockRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[lockKey(contract, record.Event.LockDepositID)] = &entry{contract: contract, record: record, indexed: true}
}

// ResyncCalls is the number of resync requests received.
func (s *Server) ResyncCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resyncCalls
}

// LocksCalls is the number of lock reads received.
func (s *Server) LocksCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locksCalls
}

func chainQuery(c *gin.Context) bool {
	if c.Query("network") == "" || c.Query("chainId") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "network and chainId are required"})
		return false
	}
	return true
}

func (s *Server) resyncLock(c *gin.Context) {
	if !chainQuery(c) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.resyncCalls++
	if s.resyncFailures > 0 {
		s.resyncFailures--
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "indexer busy"})
		return
	}

	e, ok := s.locks[lockKey(c.Param("contract"), model.LockID(c.Param("lockId")))]
	if !ok {
		c.JSON(http.StatusOK, gin.H{"data": false})
		return
	}

	// Resyncing an already indexed lock is a no-op.
	if !e.indexed {
		e.indexed = true
		e.lag = s.opts.IndexLag
	}
	c.JSON(http.StatusOK, gin.H{"data": true})
}

func (s *Server) getLocks(c *gin.Context) {
	if !chainQuery(c) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.locksCalls++
	if s.opts.LocksStatus != 0 && s.opts.LocksStatus != http.StatusOK {
		c.JSON(s.opts.LocksStatus, gin.H{"message": "locks unavailable"})
		return
	}

	wallet := c.Param("wallet")
	records := make([]model.LockRecord, 0)
	for _, e := range s.locks {
		if !strings.EqualFold(e.record.Event.WithdrawalAddress, wallet) {
			continue
		}
		if !e.indexed || s.opts.NeverIndex {
			continue
		}
		if e.lag > 0 {
			e.lag--
			continue
		}
		records = append(records, e.record)
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

type createLockRequest struct {
	ContractAddress string          `json:"contractAddress" binding:"required"`
	Event           model.LockEvent `json:"event"`
}

// createLock plays the chain for local runs: it stores an unindexed lock and
// hands back its id the way the submitter would.
func (s *Server) createLock(c *gin.Context) {
	var req createLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := s.Submit(req.ContractAddress, req.Event)
	c.JSON(http.StatusCreated, gin.H{"lockId": id})
}

// Submit stores event as a new on-chain lock with the next free id.
func (s *Server) Submit(contract string, event model.LockEvent) model.LockID {
	s.mu.Lock()
	s.nextID++
	id := model.LockID(strconv.FormatInt(s.nextID, 10))
	s.mu.Unlock()

	event.LockDepositID = id
	s.AddLock(contract, model.LockRecord{Event: event})
	logrus.WithFields(logrus.Fields{"lock_id": id, "contract": contract}).Debug("Fake lock created")
	return id
}

// ChainSubmitter locks tokens against a fake backend instead of a real chain.
type ChainSubmitter struct {
	Server          *Server
	ContractAddress string
	LockAmount      string
}

func (cs *ChainSubmitter) ApproveAndLock(ctx context.Context, req model.LockRequest) (model.LockID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	return cs.Server.Submit(cs.ContractAddress, model.LockEvent{
		TokenAddress:      req.TokenAddress,
		WithdrawalAddress: req.WithdrawalAddress,
		LockAmount:        cs.LockAmount,
		ContractAddress:   cs.ContractAddress,
	}), nil
}
