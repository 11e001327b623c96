package app

import (
	"time"

	"github.com/jameswitika/iei.org.au/internal/app/api/server"
	"github.com/jameswitika/iei.org.au/internal/app/service/activitylog"
	"github.com/jameswitika/iei.org.au/internal/app/service/application"
	"github.com/jameswitika/iei.org.au/internal/app/service/board"
	"github.com/jameswitika/iei.org.au/internal/app/service/identity"
	"github.com/jameswitika/iei.org.au/internal/app/service/member"
	"github.com/jameswitika/iei.org.au/internal/app/service/payment"
	"github.com/jameswitika/iei.org.au/internal/app/service/renewal"
	"github.com/jameswitika/iei.org.au/internal/platform/db"
	"github.com/jameswitika/iei.org.au/internal/platform/filestore"
	"github.com/jameswitika/iei.org.au/internal/platform/gateway"
	"github.com/jameswitika/iei.org.au/internal/platform/mail"
	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	server.Module,
	gateway.Module,
	filestore.Module,
	mail.Module,
	activitylog.Module,
	identity.Module,
	application.Module,
	board.Module,
	member.Module,
	payment.Module,
	renewal.Module,
	fx.Invoke(func(*renewal.Scheduler) {}),
)
