package task

import (
	"errors"
	"testing"
)

func TestTransitionEdges(t *testing.T) {
	cases := []struct {
		from, to Status
		wantErr  error
	}{
		{StatusPending, StatusProcessing, nil},
		{StatusPending, StatusCancelled, nil},
		{StatusProcessing, StatusPaused, nil},
		{StatusProcessing, StatusCompleted, nil},
		{StatusProcessing, StatusFailed, nil},
		{StatusProcessing, StatusCancelled, nil},
		{StatusPaused, StatusProcessing, nil},
		{StatusPaused, StatusCancelled, nil},
		{StatusPending, StatusPaused, ErrInvalidTransition},
		{StatusPending, StatusCompleted, ErrInvalidTransition},
		{StatusPaused, StatusCompleted, ErrInvalidTransition},
		{StatusCompleted, StatusProcessing, ErrTaskFinished},
		{StatusFailed, StatusCancelled, ErrTaskFinished},
		{StatusCancelled, StatusCancelled, ErrTaskFinished},
	}

	for _, tc := range cases {
		err := CanTransition(tc.from, tc.to)
		if tc.wantErr == nil {
			if err != nil {
				t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
			}
			continue
		}
		if !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.wantErr, err)
		}
	}
}

func TestTransitionStampsCompletion(t *testing.T) {
	tsk := &Task{Status: StatusProcessing}
	if err := tsk.Transition(StatusCompleted); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if tsk.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set")
	}
	if err := tsk.Transition(StatusProcessing); !errors.Is(err, ErrTaskFinished) {
		t.Fatalf("expected ErrTaskFinished, got %v", err)
	}
}

func TestProgressMonotonicWithinStage(t *testing.T) {
	tsk := &Task{}
	tsk.EnterStage(StageTranscribing, "transcribing")
	if tsk.Progress != StageFloor(StageTranscribing) {
		t.Fatalf("expected stage floor, got %v", tsk.Progress)
	}
	tsk.SetProgress(40, "")
	tsk.SetProgress(30, "")
	if tsk.Progress != 40 {
		t.Fatalf("progress regressed: %v", tsk.Progress)
	}
	tsk.EnterStage(StageTranslating, "translating")
	if tsk.Progress != StageFloor(StageTranslating) {
		t.Fatalf("expected reset to translate floor, got %v", tsk.Progress)
	}
}
