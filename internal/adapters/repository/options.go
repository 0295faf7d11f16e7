package repository

import "github.com/okian/rampart/pkg/logger"

// Option applies a configuration option to the SQLStore.
type Option func(*SQLStore)

// WithDialect selects the SQL flavour. The default is DialectSQLite.
func WithDialect(d Dialect) Option {
	return func(s *SQLStore) {
		if d != "" {
			s.dialect = d
		}
	}
}

// WithLogger sets the logger used for schema migration messages.
func WithLogger(l logger.Logger) Option {
	return func(s *SQLStore) {
		if l != nil {
			s.log = l
		}
	}
}
