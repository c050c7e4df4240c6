// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

// Package zkhelpers contains functions that make it easier to work with the primitives provided by
// github.com/samuel/go-zookeeper.
package zkhelpers

import (
	"fmt"
	"strings"

	"github.com/samuel/go-zookeeper/zk"
)

const (
	DefaultRoot                 = "/"
	internalZookeeperNode       = "/zookeeper"
	internalZookeeperNodePrefix = "/zookeeper/"
)

// ListSubtree does a BFS traversal of the tree under pathRoot, returning every node in traversal
// order, starting with pathRoot itself.
//
// This is never an atomic snapshot of the tree, just its state across multiple round trips to the
// ensemble.
func ListSubtree(zkConn *zk.Conn, pathRoot string) ([]string, error) {
	queue := []string{pathRoot}
	tree := []string{pathRoot}
	var node string

	for len(queue) > 0 {
		// Pop first element in the queue
		node, queue = queue[0], queue[1:]
		children, _, err := zkConn.Children(node)
		if err != nil {
			return nil, err
		}

		for _, child := range children {
			childPath := ChildPath(node, child)
			queue = append(queue, childPath)
			tree = append(tree, childPath)
		}
	}

	return tree, nil
}

// ChildPath joins a parent node and a child name.
func ChildPath(parent, child string) string {
	if parent == DefaultRoot {
		return DefaultRoot + child
	}

	return fmt.Sprintf("%v/%v", parent, child)
}

// DeleteRecursively deletes the node at pathRoot and everything under it, in a single multi-op.
// Internal ZooKeeper nodes and the root are never deleted.
func DeleteRecursively(zkConn *zk.Conn, pathRoot string) error {
	tree, err := ListSubtree(zkConn, pathRoot)
	if err != nil {
		return err
	}

	deletes := make([]interface{}, 0, len(tree))

	// We want to delete from the leaves
	for i := len(tree) - 1; i >= 0; i-- {
		if !IsInternalNode(tree[i]) && tree[i] != DefaultRoot {
			deletes = append(deletes, &zk.DeleteRequest{Path: tree[i], Version: -1})
		}
	}

	if len(deletes) == 0 {
		return nil
	}

	_, err = zkConn.Multi(deletes...)
	return err
}

func IsInternalNode(path string) bool {
	return path == internalZookeeperNode || strings.HasPrefix(path, internalZookeeperNodePrefix)
}
