package repository

import "taskd/internal/models"

// nextID returns the id for a new task: one past both the largest id still
// stored and the largest id ever issued (highWater). Deriving it from the
// stored data means a stale or missing high-water mark can never lower it.
func nextID(tasks []models.Task, highWater int64) int64 {
	top := highWater
	for _, t := range tasks {
		if t.ID > top {
			top = t.ID
		}
	}
	return top + 1
}
