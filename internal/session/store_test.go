package session

import (
	"fmt"
	"sync"
	"testing"
)

func TestStore_AppendAndHistoryOrdering(t *testing.T) {
	s := NewStore()

	const n = 10
	for i := 0; i < n; i++ {
		s.Append("s1", Turn{
			Question: fmt.Sprintf("question %d", i),
			Answer:   fmt.Sprintf("answer %d", i),
		})
	}

	history := s.History("s1")
	if len(history) != n {
		t.Fatalf("History() returned %d turns, want %d", len(history), n)
	}
	for i, turn := range history {
		if turn.Question != fmt.Sprintf("question %d", i) {
			t.Errorf("turn %d question = %q, want submission order preserved", i, turn.Question)
		}
	}
}

func TestStore_LazyCreation(t *testing.T) {
	s := NewStore()

	if got := s.History("unknown"); len(got) != 0 {
		t.Errorf("History() for unseen session = %v, want empty", got)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0; History must not create sessions", s.Len())
	}

	s.Append("s1", Turn{Question: "q", Answer: "a"})
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStore_SessionsIndependent(t *testing.T) {
	s := NewStore()

	const sessions = 8
	const turnsEach = 50

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			sid := fmt.Sprintf("s%d", id)
			for j := 0; j < turnsEach; j++ {
				s.Append(sid, Turn{
					Question: fmt.Sprintf("q%d", j),
					Answer:   fmt.Sprintf("a%d", j),
				})
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < sessions; i++ {
		sid := fmt.Sprintf("s%d", i)
		history := s.History(sid)
		if len(history) != turnsEach {
			t.Fatalf("session %s has %d turns, want %d", sid, len(history), turnsEach)
		}
		for j, turn := range history {
			if turn.Question != fmt.Sprintf("q%d", j) {
				t.Errorf("session %s turn %d out of order: %q", sid, j, turn.Question)
			}
		}
	}
}

func TestStore_HistoryReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Append("s1", Turn{Question: "q0", Answer: "a0"})

	history := s.History("s1")
	history[0].Question = "mutated"

	if got := s.History("s1"); got[0].Question != "q0" {
		t.Errorf("History() exposed internal state: %q", got[0].Question)
	}
}
