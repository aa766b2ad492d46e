// Package internal holds helpers private to lmsauth, currently session token
// generation.
//
// # Sub-packages
//
//   - audit: async event dispatch
//   - flows: orchestration for every Authority operation
//   - config: environment loading
//   - db: pgx pool and schema migrations
//   - userstore: Postgres and in-memory user directories
//   - logger: zerolog setup with file rotation
//   - httpapi: HTTP controllers
//   - sweeper: periodic expiry sweep
package internal
