package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate checks cross-field rules the env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case StorePostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			errs = append(errs, errors.New("database.dsn is required for the postgres store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("store must be %q or %q (got %q)", StorePostgres, StoreMemory, c.Store))
	}

	if c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, fmt.Errorf("database.min_conns (%d) exceeds max_conns (%d)", c.Database.MinConns, c.Database.MaxConns))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers must list at least one broker"))
	}
	if err := c.Voting.validate(); err != nil {
		errs = append(errs, fmt.Errorf("voting: %w", err))
	}
	if err := c.Sweeper.validate(); err != nil {
		errs = append(errs, fmt.Errorf("sweeper: %w", err))
	}
	if !slices.Contains([]string{"speed", "features"}, c.Detection.Strategy) {
		errs = append(errs, fmt.Errorf("detection.strategy must be speed or features (got %q)", c.Detection.Strategy))
	}
	if c.Media.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("media.max_upload_bytes must be > 0 (got %d)", c.Media.MaxUploadBytes))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2 (got %d)", c.MQTT.QoS))
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Addr == "" {
		errs = append(errs, errors.New("clickhouse.addr is required when clickhouse is enabled"))
	}

	return errors.Join(errs...)
}

func (v VotingConfig) validate() error {
	if v.Quorum <= 0 {
		return fmt.Errorf("quorum must be > 0 (got %d)", v.Quorum)
	}
	if v.ApprovalThreshold <= 0 || v.ApprovalThreshold > 1 {
		return fmt.Errorf("approval_threshold must be in (0, 1] (got %v)", v.ApprovalThreshold)
	}
	if v.ApprovalPoints < 0 {
		return fmt.Errorf("approval_points must be >= 0 (got %d)", v.ApprovalPoints)
	}
	if v.VotersPerActivity < 0 {
		return fmt.Errorf("voters_per_activity must be >= 0 (got %d)", v.VotersPerActivity)
	}
	return nil
}

func (s SweeperConfig) validate() error {
	if s.TTL <= 0 {
		return fmt.Errorf("ttl must be > 0 (got %s)", s.TTL)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be > 0 (got %s)", s.Interval)
	}
	if s.Policy != "delete" && s.Policy != "reject" {
		return fmt.Errorf("policy must be delete or reject (got %q)", s.Policy)
	}
	return nil
}
