// Package postgres implements the store interfaces on PostgreSQL.
//
// Mirror records, applicant profiles and jobs live in tables created by the
// embedded goose migrations; see Migrate.
package postgres
