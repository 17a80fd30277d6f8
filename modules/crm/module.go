package crm

import (
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/handlers"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/infrastructure/persistence"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/services"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/application"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/configuration"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/locks"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/outbox"
)

type Config struct {
	Profile         services.ProfileConfig
	NotifyMode      string
	OutboxTable     pgx.Identifier
	RefreshInterval time.Duration
}

// ConfigFrom maps process configuration onto module options.
func ConfigFrom(conf *configuration.Configuration) (Config, error) {
	table, err := outbox.ParseIdentifier(conf.Profile.OutboxTable)
	if err != nil {
		return Config{}, err
	}
	profile := services.DefaultProfileConfig()
	profile.RecentLimit = conf.Profile.RecentLimit
	profile.TextMaxLen = conf.Profile.TextMaxLen
	if stages := conf.Profile.TerminalStageList(); len(stages) > 0 {
		profile.TerminalStages = stages
	}
	return Config{
		Profile:         profile,
		NotifyMode:      conf.Profile.NotifyMode,
		OutboxTable:     table,
		RefreshInterval: conf.Profile.RefreshInterval,
	}, nil
}

func NewModule(store services.Store, coordinator locks.Coordinator, cfg Config) application.Module {
	return &Module{store: store, locks: coordinator, cfg: cfg}
}

type Module struct {
	store services.Store
	locks locks.Coordinator
	cfg   Config
}

func (m *Module) Register(app application.Application) error {
	log := logrus.NewEntry(app.Logger()).WithField("module", m.Name())

	var opts []services.NotifierOption
	if _, pg := m.store.(*persistence.Store); pg && m.cfg.NotifyMode == configuration.NotifyOutbox {
		opts = append(opts, services.WithStager(services.NewOutboxStager(outbox.NewPublisher(), m.cfg.OutboxTable)))
	} else {
		if m.cfg.NotifyMode == configuration.NotifyOutbox {
			log.Warn("crm: outbox notify mode needs the postgres store; delivering events synchronously")
		}
		opts = append(opts, services.WithFlusher(services.NewBusFlusher(app.EventPublisher())))
	}

	notifier := services.NewChangeNotifier(m.store, log, opts...)
	profiles := services.NewProfileService(m.store, m.locks, m.cfg.Profile, log)
	app.RegisterServices(
		notifier,
		profiles,
		services.NewAssignmentCascade(m.store, notifier, log),
		services.NewRecordService(m.store, notifier, log),
		services.NewLifecycleService(m.store, notifier, log),
		services.NewProfileRefresher(profiles, m.cfg.RefreshInterval, log),
	)

	handlers.RegisterOutboxEventHandlers(app)
	return nil
}

func (m *Module) Name() string {
	return "crm"
}
