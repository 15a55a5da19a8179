package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new globally unique int64 ID using the Snowflake algorithm.
// Init must have been called.
func New() int64 {
	return node.Generate().Int64()
}

// NewString returns a Snowflake ID in base36, short enough for file names.
// Falls back to node 0 when Init was never called.
func NewString() string {
	_ = Init(0)
	return node.Generate().Base36()
}
