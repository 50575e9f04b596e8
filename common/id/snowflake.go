package id

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
// Server, worker and CLI processes use different node IDs.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new time-ordered int64 ID. Init must have been called.
func New() int64 {
	return node.Generate().Int64()
}

// NewString returns New formatted in base 10, the form used in stream names and URLs.
func NewString() string {
	return strconv.FormatInt(New(), 10)
}

// Parse parses a base 10 id produced by NewString.
func Parse(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
