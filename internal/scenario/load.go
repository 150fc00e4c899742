package scenario

import (
	"errors"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/smallbiznis/mrrlab/internal/config"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scenario",
	fx.Provide(provideConfig),
)

func provideConfig(cfg config.Config, log *zap.Logger) (Config, error) {
	sc, err := LoadConfig(cfg.ScenarioFile)
	if err != nil {
		return Config{}, err
	}
	log.Named("scenario").Info("scenario.config.loaded",
		zap.Int("customers", sc.TotalCustomers()),
		zap.Int("horizon_months", sc.HorizonMonths),
		zap.Uint64("seed", sc.Seed),
	)
	return sc, nil
}

// LoadConfig reads scenario.yml from path, or from /etc/mrrlab or the working directory when path
// is empty. Keys absent from the file keep their default; a missing file means all defaults.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("scenario")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/mrrlab")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MRRLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()
	v.SetDefault("horizon_months", cfg.HorizonMonths)
	v.SetDefault("customers_per_clock", cfg.CustomersPerClock)
	v.SetDefault("seed", cfg.Seed)
	v.SetDefault("currency", cfg.Currency)
	v.SetDefault("product_name", cfg.ProductName)
	v.SetDefault("product_description", cfg.ProductDescription)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
		return cfg, cfg.Validate()
	}

	// Schedules in the file replace the defaults wholesale instead of merging into them.
	if v.IsSet("acquisition_quota") {
		cfg.AcquisitionQuota = nil
	}
	if v.IsSet("cancellation_schedule") {
		cfg.CancellationSchedule = nil
	}
	if v.IsSet("past_due_schedule") {
		cfg.PastDueSchedule = nil
	}
	if v.IsSet("plans") {
		cfg.Plans = nil
	}

	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}
