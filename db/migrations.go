package db

import (
	"database/sql"
)

// Schema, applied on startup. Uniqueness constraints here are what the
// engine leans on for idempotency under concurrent redelivery: join
// tables and vote tables conflict on their natural key instead of
// relying on an in-process lock.
const (
	sqlCreatePersonsTable = `CREATE TABLE IF NOT EXISTS persons(
						id uuid NOT NULL PRIMARY KEY,
						username varchar(100) NOT NULL,
						domain varchar(255) NOT NULL,
						actor_uri varchar(255) UNIQUE NOT NULL,
						display_name varchar(255),
						inbox_uri varchar(255),
						shared_inbox_uri varchar(255),
						public_key_pem text,
						private_key_pem text,
						local int NOT NULL DEFAULT 0,
						last_fetched_at timestamp,
						created_at timestamp default current_timestamp
						)`

	sqlCreateCommunitiesTable = `CREATE TABLE IF NOT EXISTS communities(
						id uuid NOT NULL PRIMARY KEY,
						name varchar(100) NOT NULL,
						title varchar(255),
						description text,
						actor_uri varchar(255) UNIQUE NOT NULL,
						inbox_uri varchar(255),
						shared_inbox_uri varchar(255),
						followers_uri varchar(255),
						nsfw int NOT NULL DEFAULT 0,
						icon varchar(255),
						banner varchar(255),
						public_key_pem text,
						private_key_pem text,
						local int NOT NULL DEFAULT 0,
						deleted int NOT NULL DEFAULT 0,
						removed int NOT NULL DEFAULT 0,
						last_fetched_at timestamp,
						created_at timestamp default current_timestamp
						)`

	sqlCreatePostsTable = `CREATE TABLE IF NOT EXISTS posts(
						id uuid NOT NULL PRIMARY KEY,
						ap_id varchar(255) UNIQUE NOT NULL,
						name varchar(255),
						url varchar(255),
						body text,
						creator_id uuid NOT NULL,
						community_id uuid NOT NULL,
						locked int NOT NULL DEFAULT 0,
						stickied int NOT NULL DEFAULT 0,
						removed int NOT NULL DEFAULT 0,
						deleted int NOT NULL DEFAULT 0,
						score int NOT NULL DEFAULT 0,
						local int NOT NULL DEFAULT 0,
						published timestamp default current_timestamp,
						updated timestamp default current_timestamp
						)`

	sqlCreateCommentsTable = `CREATE TABLE IF NOT EXISTS comments(
						id uuid NOT NULL PRIMARY KEY,
						ap_id varchar(255) UNIQUE NOT NULL,
						content text,
						creator_id uuid NOT NULL,
						post_id uuid NOT NULL,
						removed int NOT NULL DEFAULT 0,
						deleted int NOT NULL DEFAULT 0,
						score int NOT NULL DEFAULT 0,
						local int NOT NULL DEFAULT 0,
						published timestamp default current_timestamp,
						updated timestamp default current_timestamp
						)`

	sqlCreateFollowersTable = `CREATE TABLE IF NOT EXISTS community_followers(
						id uuid NOT NULL PRIMARY KEY,
						community_id uuid NOT NULL,
						person_id uuid NOT NULL,
						pending int NOT NULL DEFAULT 0,
						created_at timestamp default current_timestamp,
						UNIQUE(community_id, person_id)
						)`

	sqlCreateModeratorsTable = `CREATE TABLE IF NOT EXISTS community_moderators(
						community_id uuid NOT NULL,
						person_id uuid NOT NULL,
						created_at timestamp default current_timestamp,
						UNIQUE(community_id, person_id)
						)`

	sqlCreatePostVotesTable = `CREATE TABLE IF NOT EXISTS post_votes(
						post_id uuid NOT NULL,
						person_id uuid NOT NULL,
						score int NOT NULL,
						created_at timestamp default current_timestamp,
						UNIQUE(post_id, person_id)
						)`

	sqlCreateCommentVotesTable = `CREATE TABLE IF NOT EXISTS comment_votes(
						comment_id uuid NOT NULL,
						person_id uuid NOT NULL,
						score int NOT NULL,
						created_at timestamp default current_timestamp,
						UNIQUE(comment_id, person_id)
						)`

	sqlCreateModLogTable = `CREATE TABLE IF NOT EXISTS mod_log(
						id uuid NOT NULL PRIMARY KEY,
						mod_person_id uuid NOT NULL,
						target_type varchar(20) NOT NULL,
						target_id uuid NOT NULL,
						reason text,
						removed int NOT NULL DEFAULT 1,
						created_at timestamp default current_timestamp
						)`

	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities(
						id uuid NOT NULL PRIMARY KEY,
						activity_uri varchar(255) UNIQUE NOT NULL,
						activity_type varchar(50) NOT NULL,
						actor_uri varchar(255) NOT NULL,
						object_uri varchar(255),
						raw_json text,
						processed int NOT NULL DEFAULT 0,
						local int NOT NULL DEFAULT 0,
						created_at timestamp default current_timestamp
						)`

	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue(
						id uuid NOT NULL PRIMARY KEY,
						inbox_uri varchar(255) NOT NULL,
						activity_json text NOT NULL,
						sign_as_uri varchar(255) NOT NULL,
						attempts int NOT NULL DEFAULT 0,
						next_retry_at timestamp NOT NULL,
						created_at timestamp default current_timestamp
						)`
)

var schemaStatements = []string{
	sqlCreatePersonsTable,
	sqlCreateCommunitiesTable,
	sqlCreatePostsTable,
	sqlCreateCommentsTable,
	sqlCreateFollowersTable,
	sqlCreateModeratorsTable,
	sqlCreatePostVotesTable,
	sqlCreateCommentVotesTable,
	sqlCreateModLogTable,
	sqlCreateActivitiesTable,
	sqlCreateDeliveryQueueTable,
}

var indexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_posts_community ON posts(community_id)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id)`,
	`CREATE INDEX IF NOT EXISTS idx_followers_community ON community_followers(community_id)`,
	`CREATE INDEX IF NOT EXISTS idx_moderators_person ON community_moderators(person_id)`,
	`CREATE INDEX IF NOT EXISTS idx_delivery_retry ON delivery_queue(next_retry_at)`,
}

// RunMigrations creates all tables and indices if they don't exist yet.
func (db *DB) RunMigrations() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		for _, stmt := range indexStatements {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	})
}
