package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
)

type NodeStatus string

const (
	NodeOnline      NodeStatus = "online"
	NodeOffline     NodeStatus = "offline"
	NodeMaintenance NodeStatus = "maintenance"
)

func ParseNodeStatus(s string) (NodeStatus, error) {
	switch NodeStatus(s) {
	case NodeOnline, NodeOffline, NodeMaintenance:
		return NodeStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown node status %q", common.ErrorValidation, s)
}

// StorageNode is a simulated storage server. Capacity and UsedSpace are bytes.
type StorageNode struct {
	ID        string
	Name      string
	Capacity  int64
	UsedSpace int64
	Status    NodeStatus
	Location  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NodeUpdate carries the admin-editable fields of a node; nil means unchanged.
type NodeUpdate struct {
	Status   *NodeStatus
	Capacity *int64
	Location *string
}

type ReplicaStatus string

const (
	ReplicaSynced  ReplicaStatus = "synced"
	ReplicaSyncing ReplicaStatus = "syncing"
	ReplicaFailed  ReplicaStatus = "failed"
)

func ParseReplicaStatus(s string) (ReplicaStatus, error) {
	switch ReplicaStatus(s) {
	case ReplicaSynced, ReplicaSyncing, ReplicaFailed:
		return ReplicaStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown replica status %q", common.ErrorValidation, s)
}

// FileReplica records that a copy of a file is assigned to a secondary node.
// No bytes are copied; the record is bookkeeping only.
type FileReplica struct {
	ID          string
	FileID      string
	NodeID      string
	ReplicaPath string
	Status      ReplicaStatus
	CreatedAt   time.Time
}
