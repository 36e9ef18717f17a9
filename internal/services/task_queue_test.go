package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/casedesk/smechat/internal/config"
)

func TestTaskTypeReferralNotify_Constant(t *testing.T) {
	if TaskTypeReferralNotify != "referral:notify" {
		t.Errorf("TaskTypeReferralNotify = %q, expected %q", TaskTypeReferralNotify, "referral:notify")
	}
}

func TestSyncQueue_ProcessesTasks(t *testing.T) {
	q := NewSyncQueue()
	var seen atomic.Int32
	var lastID atomic.Uint32
	q.SetProcessor(func(ctx context.Context, task *ReferralTask) error {
		seen.Add(1)
		lastID.Store(uint32(task.ReferralID))
		return nil
	})

	for i := 1; i <= 3; i++ {
		if err := q.Enqueue(&ReferralTask{ReferralID: uint(i), Reference: "REF"}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if seen.Load() != 3 {
		t.Errorf("processed %d tasks, expected 3", seen.Load())
	}
	if lastID.Load() == 0 {
		t.Error("processor never saw a referral id")
	}
}

func TestSyncQueue_ProcessorErrorIsNotReturned(t *testing.T) {
	q := NewSyncQueue()
	q.SetProcessor(func(ctx context.Context, task *ReferralTask) error {
		return errors.New("webhook down")
	})
	if err := q.Enqueue(&ReferralTask{ReferralID: 1}); err != nil {
		t.Errorf("Enqueue returned %v, expected nil", err)
	}
	q.Close()
}

func TestSyncQueue_NoProcessorDropsTask(t *testing.T) {
	q := NewSyncQueue()
	if err := q.Enqueue(&ReferralTask{ReferralID: 1}); err != nil {
		t.Errorf("Enqueue: %v", err)
	}
	if q.IsAsync() {
		t.Error("SyncQueue should not be async")
	}
	q.Close()
}

func TestNewTaskQueue_RedisDisabled(t *testing.T) {
	q := NewTaskQueue(&config.RedisConfig{Enabled: false})
	if _, ok := q.(*SyncQueue); !ok {
		t.Errorf("queue = %T, expected *SyncQueue", q)
	}
}

func TestNewTaskQueue_RedisUnreachableFallsBack(t *testing.T) {
	q := NewTaskQueue(&config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1"})
	defer q.Close()
	if q.IsAsync() {
		t.Error("expected sync fallback when Redis is unreachable")
	}
}

func TestQueueName(t *testing.T) {
	if got := queueName(&config.RedisConfig{}); got != "referrals" {
		t.Errorf("queueName(empty) = %q", got)
	}
	if got := queueName(&config.RedisConfig{Queue: "sme"}); got != "sme" {
		t.Errorf("queueName = %q", got)
	}
	if got := notifyTaskID(&ReferralTask{Reference: "REF-0A1B2C3D"}); got != "referral:notify:REF-0A1B2C3D" {
		t.Errorf("notifyTaskID = %q", got)
	}
}
