package dashboard

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"dca-console/internal/gateway"
)

func TestNextSubmissionState(t *testing.T) {
	cases := []struct {
		from  SubmissionState
		event submissionEvent
		want  SubmissionState
	}{
		{SubmissionPending, eventExecuted, SubmissionSucceeded},
		{SubmissionPending, eventFailed, SubmissionFailed},
		{SubmissionSucceeded, eventFailed, SubmissionSucceeded},
		{SubmissionFailed, eventExecuted, SubmissionFailed},
	}
	for _, tc := range cases {
		if got := nextSubmissionState(tc.from, tc.event); got != tc.want {
			t.Fatalf("%s on %d: expected %s, got %s", tc.from, tc.event, tc.want, got)
		}
	}
}

func TestSubmissionFinishesOnce(t *testing.T) {
	now := time.Unix(1700000000, 0)
	sub := newSubmission("s1", gateway.TxOpen, "", now)
	if !sub.succeed("digest", "https://explorer/txblock/digest", now.Add(time.Second)) {
		t.Fatalf("expected first transition to apply")
	}
	if sub.fail(errors.New("late"), now.Add(2*time.Second)) {
		t.Fatalf("expected finished submission to ignore later events")
	}
	out := sub.Outcome()
	if out.State != SubmissionSucceeded || out.Error != "" || out.Digest != "digest" {
		t.Fatalf("unexpected outcome %#v", out)
	}
	if out.FinishedAt == nil || !out.FinishedAt.Equal(now.Add(time.Second)) {
		t.Fatalf("unexpected finish time %v", out.FinishedAt)
	}
	select {
	case <-sub.Done():
	default:
		t.Fatalf("expected done to be closed")
	}
}

func TestTrackEvictsOldestFinished(t *testing.T) {
	d := New(Options{})
	defer d.Close()
	now := time.Unix(0, 0)
	first := newSubmission("first", gateway.TxOpen, "", now)
	first.fail(errors.New("x"), now)
	d.track(first)
	for i := 0; i < maxSubmissions; i++ {
		d.track(newSubmission(fmt.Sprintf("s%d", i), gateway.TxOpen, "", now))
	}
	if _, ok := d.Submission("first"); ok {
		t.Fatalf("expected oldest finished submission evicted")
	}
	if len(d.submissions) != maxSubmissions {
		t.Fatalf("expected %d retained, got %d", maxSubmissions, len(d.submissions))
	}
}
