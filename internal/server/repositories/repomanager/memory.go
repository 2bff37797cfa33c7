package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/auditlog"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/files"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/nodes"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/otps"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/replicas"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/sharelinks"
)

// MemoryRepositoryManager hands out the same in-memory repositories whatever
// DBTX it is given. Transactions opened around them do not roll back map
// changes.
type MemoryRepositoryManager struct {
	OTPRepo       *otps.MemoryRepository
	AuditRepo     *auditlog.MemoryRepository
	NodeRepo      *nodes.MemoryRepository
	FileRepo      *files.MemoryRepository
	ReplicaRepo   *replicas.MemoryRepository
	ShareLinkRepo *sharelinks.MemoryRepository
	ProfileRepo   *profiles.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		OTPRepo:       otps.NewMemoryRepository(),
		AuditRepo:     auditlog.NewMemoryRepository(),
		NodeRepo:      nodes.NewMemoryRepository(),
		FileRepo:      files.NewMemoryRepository(),
		ReplicaRepo:   replicas.NewMemoryRepository(),
		ShareLinkRepo: sharelinks.NewMemoryRepository(),
		ProfileRepo:   profiles.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *MemoryRepositoryManager) OTPs(dbx.DBTX) otps.Repository             { return m.OTPRepo }
func (m *MemoryRepositoryManager) AuditLog(dbx.DBTX) auditlog.Repository     { return m.AuditRepo }
func (m *MemoryRepositoryManager) Nodes(dbx.DBTX) nodes.Repository           { return m.NodeRepo }
func (m *MemoryRepositoryManager) Files(dbx.DBTX) files.Repository           { return m.FileRepo }
func (m *MemoryRepositoryManager) Replicas(dbx.DBTX) replicas.Repository     { return m.ReplicaRepo }
func (m *MemoryRepositoryManager) ShareLinks(dbx.DBTX) sharelinks.Repository { return m.ShareLinkRepo }
func (m *MemoryRepositoryManager) Profiles(dbx.DBTX) profiles.Repository     { return m.ProfileRepo }
