package uploader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

type fakeQueue struct {
	rows    []*model.SendHistory
	removed [][]uint64
	readErr error
}

func (f *fakeQueue) PendingHistory(limit int) ([]*model.SendHistory, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if limit > len(f.rows) {
		limit = len(f.rows)
	}
	return f.rows[:limit], nil
}

func (f *fakeQueue) RemovePending(seqs []uint64) error {
	f.removed = append(f.removed, seqs)
	remaining := f.rows[:0]
	for _, r := range f.rows {
		keep := true
		for _, seq := range seqs {
			if r.UploadSeq == seq {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, r)
		}
	}
	f.rows = remaining
	return nil
}

type fakeClient struct {
	batches [][]*model.SendHistory
	err     error
}

func (f *fakeClient) SubmitHistory(ctx context.Context, rows []*model.SendHistory) error {
	f.batches = append(f.batches, rows)
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func row(seq uint64) *model.SendHistory {
	return &model.SendHistory{ID: "h", ScheduleID: "s1", UploadSeq: seq, SentAt: time.Now()}
}

func TestProcessQueueUploadsAndRemoves(t *testing.T) {
	queue := &fakeQueue{rows: []*model.SendHistory{row(1), row(2)}}
	client := &fakeClient{}
	u := New(queue, client, discardLogger())

	u.processQueue(context.Background())

	if len(client.batches) != 1 || len(client.batches[0]) != 2 {
		t.Fatalf("expected one batch of 2, got %+v", client.batches)
	}
	if len(queue.removed) != 1 {
		t.Fatalf("expected one removal call, got %d", len(queue.removed))
	}
	if got := queue.removed[0]; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("unexpected removed seqs %v", got)
	}
	if len(queue.rows) != 0 {
		t.Errorf("expected queue drained, %d rows remain", len(queue.rows))
	}
}

func TestProcessQueueKeepsRowsOnUploadFailure(t *testing.T) {
	queue := &fakeQueue{rows: []*model.SendHistory{row(1)}}
	client := &fakeClient{err: errors.New("server unreachable")}
	u := New(queue, client, discardLogger())

	u.processQueue(context.Background())

	if len(queue.removed) != 0 {
		t.Error("expected no removal after failed upload")
	}
	if len(queue.rows) != 1 {
		t.Errorf("expected row retained for retry, got %d rows", len(queue.rows))
	}
}

func TestProcessQueueEmptyIsNoop(t *testing.T) {
	queue := &fakeQueue{}
	client := &fakeClient{}
	u := New(queue, client, discardLogger())

	u.processQueue(context.Background())

	if len(client.batches) != 0 {
		t.Error("expected no upload for empty queue")
	}
}

func TestProcessQueueReadErrorDoesNotUpload(t *testing.T) {
	queue := &fakeQueue{readErr: errors.New("db closed")}
	client := &fakeClient{}
	u := New(queue, client, discardLogger())

	u.processQueue(context.Background())

	if len(client.batches) != 0 {
		t.Error("expected no upload after queue read error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	queue := &fakeQueue{}
	u := New(queue, &fakeClient{}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		u.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("uploader did not stop after cancel")
	}
}
