// Package status reports service liveness to Redis so external monitoring
// can tell whether the moderation engine is up and what it is doing.
package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	// HeartbeatInterval is how often the service reports its status.
	HeartbeatInterval = 30 * time.Second

	// HeartbeatTTL is how long a reported status remains valid. Three missed
	// beats mark the service offline.
	HeartbeatTTL = 90 * time.Second
)

// Status is the JSON heartbeat blob stored in Redis.
type Status struct {
	ServiceID   string    `json:"serviceId"`
	ServiceType string    `json:"serviceType"`
	LastSeen    time.Time `json:"lastSeen"`
	CurrentTask string    `json:"currentTask,omitempty"`
	IsHealthy   bool      `json:"isHealthy"`
}

// Reporter periodically writes the service heartbeat.
type Reporter struct {
	client   rueidis.Client
	status   Status
	stopChan chan struct{}
	stopped  bool
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewReporter creates a reporter with a fresh service ID.
func NewReporter(client rueidis.Client, serviceType string, logger *zap.Logger) *Reporter {
	return &Reporter{
		client: client,
		status: Status{
			ServiceID:   uuid.New().String(),
			ServiceType: serviceType,
			IsHealthy:   true,
		},
		stopChan: make(chan struct{}),
		logger:   logger.Named("status_reporter"),
	}
}

// Start begins periodic status reporting.
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()

	if r.stopped {
		r.mu.Unlock()
		return
	}

	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()

		if err := r.report(ctx); err != nil {
			r.logger.Error("Failed to report initial status", zap.Error(err))
		}

		for {
			select {
			case <-ticker.C:
				if err := r.report(ctx); err != nil {
					r.logger.Error("Failed to report status", zap.Error(err))
				}
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			}
		}
	}()
}

// Stop ends status reporting.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.stopped {
		close(r.stopChan)
		r.stopped = true
	}
}

// UpdateTask updates the reported current task.
func (r *Reporter) UpdateTask(task string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.CurrentTask = task
}

// SetHealthy updates the reported health flag.
func (r *Reporter) SetHealthy(healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.IsHealthy = healthy
}

// ServiceID returns the unique ID of this instance.
func (r *Reporter) ServiceID() string {
	return r.status.ServiceID
}

func (r *Reporter) report(ctx context.Context) error {
	r.mu.Lock()
	status := r.status
	r.mu.Unlock()

	status.LastSeen = time.Now()

	data, err := sonic.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	key := fmt.Sprintf("service:%s:%s", status.ServiceType, status.ServiceID)

	err = r.client.Do(ctx,
		r.client.B().Set().Key(key).Value(string(data)).Ex(HeartbeatTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to store status: %w", err)
	}

	return nil
}
