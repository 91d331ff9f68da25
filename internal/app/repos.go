package app

import (
	"gorm.io/gorm"

	aggrepo "github.com/yungbote/aggregation-backend/internal/data/repos/aggregation"
	"github.com/yungbote/aggregation-backend/internal/data/repos/memstore"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

type Repos struct {
	Sessions aggrepo.SessionRepo
	Codes    aggrepo.CodeRepo
	Products aggrepo.ProductRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Sessions: aggrepo.NewSessionRepo(db, log),
		Codes:    aggrepo.NewCodeRepo(db, log),
		Products: aggrepo.NewProductRepo(db, log),
	}
}

// wireMemoryRepos backs a single-instance deployment or a local demo.
func wireMemoryRepos(log *logger.Logger) Repos {
	log.Warn("Wiring in-memory repos; state is lost on restart")
	return Repos{
		Sessions: memstore.NewSessionStore(),
		Codes:    memstore.NewCodeStore(),
		Products: memstore.NewProductStore(),
	}
}
