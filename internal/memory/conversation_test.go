package memory

import (
	"fmt"
	"sync"
	"testing"
)

func TestConversationAppendAndTrim(t *testing.T) {
	c := NewConversation(3)
	for i := 0; i < 5; i++ {
		c.Append(fmt.Sprintf("u%d", i), fmt.Sprintf("a%d", i))
	}

	if got := c.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	turns := c.Turns()
	if turns[0].UserText != "u2" {
		t.Errorf("oldest kept turn = %q, want u2", turns[0].UserText)
	}
	if turns[2].AssistantText != "a4" {
		t.Errorf("newest turn = %q, want a4", turns[2].AssistantText)
	}
}

func TestConversationContext(t *testing.T) {
	c := NewConversation(10)
	for i := 0; i < 4; i++ {
		c.Append(fmt.Sprintf("u%d", i), fmt.Sprintf("a%d", i))
	}

	last2 := c.Context(2)
	if len(last2) != 2 {
		t.Fatalf("Context(2) returned %d turns", len(last2))
	}
	if last2[0].UserText != "u2" || last2[1].UserText != "u3" {
		t.Errorf("Context(2) = [%q %q], want [u2 u3]", last2[0].UserText, last2[1].UserText)
	}

	if got := c.Context(0); got != nil {
		t.Errorf("Context(0) = %v, want nil", got)
	}
	if got := c.Context(99); len(got) != 4 {
		t.Errorf("Context(99) returned %d turns, want 4", len(got))
	}
}

func TestConversationResize(t *testing.T) {
	c := NewConversation(10)
	for i := 0; i < 5; i++ {
		c.Append(fmt.Sprintf("u%d", i), "ok")
	}

	c.Resize(2)
	if got := c.Len(); got != 2 {
		t.Fatalf("Len() after Resize(2) = %d, want 2", got)
	}
	if turns := c.Turns(); turns[1].UserText != "u4" {
		t.Errorf("newest turn after resize = %q, want u4", turns[1].UserText)
	}

	c.Resize(0)
	if got := c.Capacity(); got != 1 {
		t.Errorf("Capacity() after Resize(0) = %d, want 1", got)
	}
}

func TestConversationClear(t *testing.T) {
	c := NewConversation(4)
	c.Append("hello", "hi")
	c.Clear()
	if got := c.Len(); got != 0 {
		t.Errorf("Len() after Clear = %d, want 0", got)
	}
}

func TestConversationConcurrentAppend(t *testing.T) {
	c := NewConversation(10)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				c.Append(fmt.Sprintf("u%d-%d", n, j), "ok")
				c.Context(3)
			}
		}(i)
	}
	wg.Wait()

	if got := c.Len(); got != 10 {
		t.Errorf("Len() after concurrent appends = %d, want 10", got)
	}
}
