// Package repomanager vends repositories bound to a dbx.DBTX, so services can
// run the same repository code against a *sql.DB or inside a transaction.
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

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	OTPs(db dbx.DBTX) otps.Repository
	AuditLog(db dbx.DBTX) auditlog.Repository
	Nodes(db dbx.DBTX) nodes.Repository
	Files(db dbx.DBTX) files.Repository
	Replicas(db dbx.DBTX) replicas.Repository
	ShareLinks(db dbx.DBTX) sharelinks.Repository
	Profiles(db dbx.DBTX) profiles.Repository
}
