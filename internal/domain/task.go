package domain

import "time"

// TaskKind - тип задания
type TaskKind string

const (
	TaskKindGeneric    TaskKind = "generic"
	TaskKindGroupShare TaskKind = "group_share" // засчитывается в group_share_count
)

// Task is an admin-defined one-time reward.
type Task struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Reward    float64   `db:"reward" json:"reward"`
	Link      string    `db:"link" json:"link"`
	Kind      TaskKind  `db:"kind" json:"kind"`
	Active    bool      `db:"active" json:"active"`
	SortOrder int       `db:"sort_order" json:"sort_order"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Valid reports whether k is a known task kind.
func (k TaskKind) Valid() bool {
	return k == TaskKindGeneric || k == TaskKindGroupShare
}
