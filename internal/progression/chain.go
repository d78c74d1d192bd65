package progression

import (
	"sort"

	"github.com/google/uuid"
	"github.com/romanzh1/startup-sprint/internal/models"
)

// Chain is the unlock chain of a program: its non-archived lessons ordered by OrderIndex.
type Chain []*models.Lesson

func NewChain(lessons []*models.Lesson) Chain {
	chain := make(Chain, 0, len(lessons))
	for _, l := range lessons {
		if l.Visibility == models.VisibilityArchived {
			continue
		}
		chain = append(chain, l)
	}

	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].OrderIndex < chain[j].OrderIndex
	})

	return chain
}

// Position returns the zero-based index of the lesson in the chain, or -1.
func (c Chain) Position(lessonID uuid.UUID) int {
	for i, l := range c {
		if l.ID == lessonID {
			return i
		}
	}
	return -1
}

func (c Chain) Contains(lessonID uuid.UUID) bool {
	return c.Position(lessonID) >= 0
}

func (c Chain) IsLast(lessonID uuid.UUID) bool {
	pos := c.Position(lessonID)
	return pos >= 0 && pos == len(c)-1
}

func (c Chain) Next(lessonID uuid.UUID) (*models.Lesson, bool) {
	pos := c.Position(lessonID)
	if pos < 0 || pos+1 >= len(c) {
		return nil, false
	}
	return c[pos+1], true
}
