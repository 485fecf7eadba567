package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/agora/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the sqlite-backed record store. The engine only ever talks to
// it through key-addressed reads, upserts and point updates.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and configures the
// connection pool for the concurrent federation workload.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	sqldb.SetMaxOpenConns(25)
	sqldb.SetMaxIdleConns(5)
	sqldb.SetConnMaxLifetime(time.Hour)

	var journalMode string
	if err := sqldb.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		log.Warn().Err(err).Msg("failed to enable WAL mode")
	} else {
		log.Debug().Str("mode", journalMode).Msg("database journal mode")
	}

	sqldb.Exec("PRAGMA synchronous = NORMAL")
	sqldb.Exec("PRAGMA cache_size = -64000")
	sqldb.Exec("PRAGMA temp_store = MEMORY")
	sqldb.Exec("PRAGMA busy_timeout = 5000")
	sqldb.Exec("PRAGMA foreign_keys = ON")

	return &DB{db: sqldb}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// wrapTransaction runs the given function within a transaction,
// retrying on SQLITE_BUSY.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("error starting transaction")
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Error().Err(err).Msg("error committing transaction")
			return err
		}
		break
	}
	return nil
}

// Persons

const (
	sqlUpsertPerson = `INSERT INTO persons(id, username, domain, actor_uri, display_name, inbox_uri, shared_inbox_uri, public_key_pem, private_key_pem, local, last_fetched_at, created_at)
						VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
						ON CONFLICT(actor_uri) DO UPDATE SET
							username = excluded.username,
							domain = excluded.domain,
							display_name = excluded.display_name,
							inbox_uri = excluded.inbox_uri,
							shared_inbox_uri = excluded.shared_inbox_uri,
							public_key_pem = excluded.public_key_pem,
							last_fetched_at = excluded.last_fetched_at`
	sqlSelectPerson       = `SELECT id, username, domain, actor_uri, display_name, inbox_uri, shared_inbox_uri, public_key_pem, private_key_pem, local, last_fetched_at, created_at FROM persons`
	sqlSelectPersonByURI  = sqlSelectPerson + ` WHERE actor_uri = ?`
	sqlSelectPersonById   = sqlSelectPerson + ` WHERE id = ?`
	sqlSelectPersonByName = sqlSelectPerson + ` WHERE username = ? AND local = 1`
)

// UpsertPerson inserts or refreshes a person keyed by actor uri.
// Resolving the same actor twice converges to a single row.
func (db *DB) UpsertPerson(p *domain.Person) error {
	if p.Id == uuid.Nil {
		p.Id = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertPerson,
			p.Id.String(), p.Username, p.Domain, p.ActorURI, p.DisplayName,
			p.InboxURI, p.SharedInboxURI, p.PublicKeyPem, p.PrivateKeyPem,
			p.Local, p.LastFetchedAt, p.CreatedAt)
		return err
	})
}

func (db *DB) scanPerson(row *sql.Row) (*domain.Person, error) {
	var p domain.Person
	var idStr string
	err := row.Scan(&idStr, &p.Username, &p.Domain, &p.ActorURI, &p.DisplayName,
		&p.InboxURI, &p.SharedInboxURI, &p.PublicKeyPem, &p.PrivateKeyPem,
		&p.Local, &p.LastFetchedAt, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Id, _ = uuid.Parse(idStr)
	return &p, nil
}

func (db *DB) PersonByURI(uri string) (*domain.Person, error) {
	return db.scanPerson(db.db.QueryRow(sqlSelectPersonByURI, uri))
}

func (db *DB) PersonByID(id uuid.UUID) (*domain.Person, error) {
	return db.scanPerson(db.db.QueryRow(sqlSelectPersonById, id.String()))
}

func (db *DB) LocalPersonByName(username string) (*domain.Person, error) {
	return db.scanPerson(db.db.QueryRow(sqlSelectPersonByName, username))
}

// Communities

const (
	sqlUpsertCommunity = `INSERT INTO communities(id, name, title, description, actor_uri, inbox_uri, shared_inbox_uri, followers_uri, nsfw, icon, banner, public_key_pem, private_key_pem, local, deleted, removed, last_fetched_at, created_at)
						VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
						ON CONFLICT(actor_uri) DO UPDATE SET
							name = excluded.name,
							title = excluded.title,
							description = excluded.description,
							inbox_uri = excluded.inbox_uri,
							shared_inbox_uri = excluded.shared_inbox_uri,
							followers_uri = excluded.followers_uri,
							nsfw = excluded.nsfw,
							icon = excluded.icon,
							banner = excluded.banner,
							public_key_pem = excluded.public_key_pem,
							last_fetched_at = excluded.last_fetched_at`
	sqlSelectCommunity       = `SELECT id, name, title, description, actor_uri, inbox_uri, shared_inbox_uri, followers_uri, nsfw, icon, banner, public_key_pem, private_key_pem, local, deleted, removed, last_fetched_at, created_at FROM communities`
	sqlSelectCommunityByURI  = sqlSelectCommunity + ` WHERE actor_uri = ?`
	sqlSelectCommunityById   = sqlSelectCommunity + ` WHERE id = ?`
	sqlSelectCommunityByName = sqlSelectCommunity + ` WHERE name = ? AND local = 1`
	sqlUpdateCommunityRemoved = `UPDATE communities SET removed = ? WHERE id = ?`
	sqlUpdateCommunityDeleted = `UPDATE communities SET deleted = ? WHERE id = ?`
	sqlUpdateCommunityProfile = `UPDATE communities SET name = ?, title = ?, description = ?, nsfw = ?, icon = ?, banner = ? WHERE id = ?`
)

func (db *DB) UpsertCommunity(c *domain.Community) error {
	if c.Id == uuid.Nil {
		c.Id = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertCommunity,
			c.Id.String(), c.Name, c.Title, c.Description, c.ActorURI,
			c.InboxURI, c.SharedInboxURI, c.FollowersURI, c.NSFW, c.Icon,
			c.Banner, c.PublicKeyPem, c.PrivateKeyPem, c.Local, c.Deleted,
			c.Removed, c.LastFetchedAt, c.CreatedAt)
		return err
	})
}

func (db *DB) scanCommunity(row *sql.Row) (*domain.Community, error) {
	var c domain.Community
	var idStr string
	err := row.Scan(&idStr, &c.Name, &c.Title, &c.Description, &c.ActorURI,
		&c.InboxURI, &c.SharedInboxURI, &c.FollowersURI, &c.NSFW, &c.Icon,
		&c.Banner, &c.PublicKeyPem, &c.PrivateKeyPem, &c.Local, &c.Deleted,
		&c.Removed, &c.LastFetchedAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Id, _ = uuid.Parse(idStr)
	return &c, nil
}

func (db *DB) CommunityByURI(uri string) (*domain.Community, error) {
	return db.scanCommunity(db.db.QueryRow(sqlSelectCommunityByURI, uri))
}

func (db *DB) CommunityByID(id uuid.UUID) (*domain.Community, error) {
	return db.scanCommunity(db.db.QueryRow(sqlSelectCommunityById, id.String()))
}

func (db *DB) LocalCommunityByName(name string) (*domain.Community, error) {
	return db.scanCommunity(db.db.QueryRow(sqlSelectCommunityByName, name))
}

// UpdateCommunityProfile rewrites the presentational fields only.
// Keys, inbox uris and the local and removal flags are not reachable
// from here, a federated profile edit cannot touch them.
func (db *DB) UpdateCommunityProfile(id uuid.UUID, name, title, description string, nsfw bool, icon, banner string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateCommunityProfile, name, title, description, nsfw, icon, banner, id.String())
		return err
	})
}

func (db *DB) UpdateCommunityRemoved(id uuid.UUID, removed bool) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateCommunityRemoved, removed, id.String())
		return err
	})
}

func (db *DB) UpdateCommunityDeleted(id uuid.UUID, deleted bool) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateCommunityDeleted, deleted, id.String())
		return err
	})
}

// Posts

const (
	sqlUpsertPost = `INSERT INTO posts(id, ap_id, name, url, body, creator_id, community_id, locked, stickied, removed, deleted, score, local, published, updated)
						VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
						ON CONFLICT(ap_id) DO UPDATE SET
							name = excluded.name,
							url = excluded.url,
							body = excluded.body,
							locked = excluded.locked,
							stickied = excluded.stickied,
							updated = excluded.updated`
	sqlSelectPost               = `SELECT id, ap_id, name, url, body, creator_id, community_id, locked, stickied, removed, deleted, score, local, published, updated FROM posts`
	sqlSelectPostByURI          = sqlSelectPost + ` WHERE ap_id = ?`
	sqlSelectPostById           = sqlSelectPost + ` WHERE id = ?`
	sqlSelectPostsByCommunity   = sqlSelectPost + ` WHERE community_id = ? AND removed = 0 AND deleted = 0 ORDER BY published DESC LIMIT ?`
	sqlUpdatePostRemoved        = `UPDATE posts SET removed = ? WHERE id = ?`
	sqlUpdatePostDeleted        = `UPDATE posts SET deleted = ? WHERE id = ?`
)

func (db *DB) UpsertPost(p *domain.Post) error {
	if p.Id == uuid.Nil {
		p.Id = uuid.New()
	}
	if p.Published.IsZero() {
		p.Published = time.Now()
	}
	if p.Updated.IsZero() {
		p.Updated = p.Published
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertPost,
			p.Id.String(), p.ApID, p.Name, p.URL, p.Body,
			p.CreatorId.String(), p.CommunityId.String(), p.Locked,
			p.Stickied, p.Removed, p.Deleted, p.Score, p.Local,
			p.Published, p.Updated)
		return err
	})
}

func scanPostRow(scan func(dest ...any) error) (*domain.Post, error) {
	var p domain.Post
	var idStr, creatorStr, communityStr string
	err := scan(&idStr, &p.ApID, &p.Name, &p.URL, &p.Body, &creatorStr,
		&communityStr, &p.Locked, &p.Stickied, &p.Removed, &p.Deleted,
		&p.Score, &p.Local, &p.Published, &p.Updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Id, _ = uuid.Parse(idStr)
	p.CreatorId, _ = uuid.Parse(creatorStr)
	p.CommunityId, _ = uuid.Parse(communityStr)
	return &p, nil
}

func (db *DB) PostByURI(uri string) (*domain.Post, error) {
	return scanPostRow(db.db.QueryRow(sqlSelectPostByURI, uri).Scan)
}

func (db *DB) PostByID(id uuid.UUID) (*domain.Post, error) {
	return scanPostRow(db.db.QueryRow(sqlSelectPostById, id.String()).Scan)
}

func (db *DB) RecentPostsByCommunity(communityId uuid.UUID, limit int) ([]domain.Post, error) {
	rows, err := db.db.Query(sqlSelectPostsByCommunity, communityId.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		p, err := scanPostRow(rows.Scan)
		if err != nil {
			return posts, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func (db *DB) UpdatePostRemoved(id uuid.UUID, removed bool) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdatePostRemoved, removed, id.String())
		return err
	})
}

func (db *DB) UpdatePostDeleted(id uuid.UUID, deleted bool) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdatePostDeleted, deleted, id.String())
		return err
	})
}

// Comments

const (
	sqlUpsertComment = `INSERT INTO comments(id, ap_id, content, creator_id, post_id, removed, deleted, score, local, published, updated)
						VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
						ON CONFLICT(ap_id) DO UPDATE SET
							content = excluded.content,
							updated = excluded.updated`
	sqlSelectComment        = `SELECT id, ap_id, content, creator_id, post_id, removed, deleted, score, local, published, updated FROM comments`
	sqlSelectCommentByURI   = sqlSelectComment + ` WHERE ap_id = ?`
	sqlSelectCommentById    = sqlSelectComment + ` WHERE id = ?`
	sqlUpdateCommentRemoved = `UPDATE comments SET removed = ? WHERE id = ?`
	sqlUpdateCommentDeleted = `UPDATE comments SET deleted = ? WHERE id = ?`
)

func (db *DB) UpsertComment(c *domain.Comment) error {
	if c.Id == uuid.Nil {
		c.Id = uuid.New()
	}
	if c.Published.IsZero() {
		c.Published = time.Now()
	}
	if c.Updated.IsZero() {
		c.Updated = c.Published
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertComment,
			c.Id.String(), c.ApID, c.Content, c.CreatorId.String(),
			c.PostId.String(), c.Removed, c.Deleted, c.Score, c.Local,
			c.Published, c.Updated)
		return err
	})
}

func (db *DB) scanComment(row *sql.Row) (*domain.Comment, error) {
	var c domain.Comment
	var idStr, creatorStr, postStr string
	err := row.Scan(&idStr, &c.ApID, &c.Content, &creatorStr, &postStr,
		&c.Removed, &c.Deleted, &c.Score, &c.Local, &c.Published, &c.Updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Id, _ = uuid.Parse(idStr)
	c.CreatorId, _ = uuid.Parse(creatorStr)
	c.PostId, _ = uuid.Parse(postStr)
	return &c, nil
}

func (db *DB) CommentByURI(uri string) (*domain.Comment, error) {
	return db.scanComment(db.db.QueryRow(sqlSelectCommentByURI, uri))
}

func (db *DB) CommentByID(id uuid.UUID) (*domain.Comment, error) {
	return db.scanComment(db.db.QueryRow(sqlSelectCommentById, id.String()))
}

func (db *DB) UpdateCommentRemoved(id uuid.UUID, removed bool) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateCommentRemoved, removed, id.String())
		return err
	})
}

func (db *DB) UpdateCommentDeleted(id uuid.UUID, deleted bool) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateCommentDeleted, deleted, id.String())
		return err
	})
}

// Moderators

const (
	sqlInsertModerator           = `INSERT OR IGNORE INTO community_moderators(community_id, person_id, created_at) VALUES (?, ?, ?)`
	sqlSelectModeratedCommunities = `SELECT community_id FROM community_moderators WHERE person_id = ?`
	sqlSelectModeratorsByCommunity = `SELECT p.id, p.username, p.domain, p.actor_uri, p.display_name, p.inbox_uri, p.shared_inbox_uri, p.public_key_pem, p.private_key_pem, p.local, p.last_fetched_at, p.created_at
						FROM persons p INNER JOIN community_moderators m ON m.person_id = p.id
						WHERE m.community_id = ? ORDER BY m.created_at ASC`
)

// JoinModerator grants moderator status. Inserting an existing relation
// is a no-op thanks to the uniqueness constraint.
func (db *DB) JoinModerator(communityId, personId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertModerator, communityId.String(), personId.String(), time.Now())
		return err
	})
}

func (db *DB) PersonModeratedCommunities(personId uuid.UUID) ([]uuid.UUID, error) {
	rows, err := db.db.Query(sqlSelectModeratedCommunities, personId.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return ids, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) ModeratorsOfCommunity(communityId uuid.UUID) ([]domain.Person, error) {
	rows, err := db.db.Query(sqlSelectModeratorsByCommunity, communityId.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mods []domain.Person
	for rows.Next() {
		var p domain.Person
		var idStr string
		if err := rows.Scan(&idStr, &p.Username, &p.Domain, &p.ActorURI,
			&p.DisplayName, &p.InboxURI, &p.SharedInboxURI, &p.PublicKeyPem,
			&p.PrivateKeyPem, &p.Local, &p.LastFetchedAt, &p.CreatedAt); err != nil {
			return mods, err
		}
		p.Id, _ = uuid.Parse(idStr)
		mods = append(mods, p)
	}
	return mods, rows.Err()
}

// Followers

const (
	sqlInsertFollower         = `INSERT OR IGNORE INTO community_followers(id, community_id, person_id, pending, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlDeleteFollower         = `DELETE FROM community_followers WHERE community_id = ? AND person_id = ?`
	sqlAcceptFollower         = `UPDATE community_followers SET pending = 0 WHERE community_id = ? AND person_id = ?`
	sqlSelectFollower         = `SELECT id FROM community_followers WHERE community_id = ? AND person_id = ? AND pending = 0`
	sqlSelectFollowerInboxes  = `SELECT DISTINCT CASE WHEN p.shared_inbox_uri != '' THEN p.shared_inbox_uri ELSE p.inbox_uri END
						FROM persons p INNER JOIN community_followers f ON f.person_id = p.id
						WHERE f.community_id = ? AND f.pending = 0 AND p.local = 0`
)

func (db *DB) CreateFollower(f *domain.CommunityFollower) error {
	if f.Id == uuid.Nil {
		f.Id = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollower,
			f.Id.String(), f.CommunityId.String(), f.PersonId.String(),
			f.Pending, f.CreatedAt)
		return err
	})
}

// AcceptFollower clears the pending flag once the remote community
// confirmed the follow.
func (db *DB) AcceptFollower(communityId, personId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlAcceptFollower, communityId.String(), personId.String())
		return err
	})
}

// DeleteFollower removes a follower relation. Unfollowing a
// non-follower deletes zero rows and is not an error.
func (db *DB) DeleteFollower(communityId, personId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollower, communityId.String(), personId.String())
		return err
	})
}

func (db *DB) IsFollower(communityId, personId uuid.UUID) (bool, error) {
	var idStr string
	err := db.db.QueryRow(sqlSelectFollower, communityId.String(), personId.String()).Scan(&idStr)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FollowerInboxes returns the deduplicated remote inbox set for a
// community's follower fan-out.
func (db *DB) FollowerInboxes(communityId uuid.UUID) ([]string, error) {
	rows, err := db.db.Query(sqlSelectFollowerInboxes, communityId.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inboxes []string
	for rows.Next() {
		var inbox string
		if err := rows.Scan(&inbox); err != nil {
			return inboxes, err
		}
		if inbox != "" {
			inboxes = append(inboxes, inbox)
		}
	}
	return inboxes, rows.Err()
}

// Votes

const (
	sqlUpsertPostVote = `INSERT INTO post_votes(post_id, person_id, score, created_at) VALUES (?, ?, ?, ?)
						ON CONFLICT(post_id, person_id) DO UPDATE SET score = excluded.score`
	sqlRecomputePostScore = `UPDATE posts SET score = (SELECT COALESCE(SUM(score), 0) FROM post_votes WHERE post_id = ?) WHERE id = ?`

	sqlUpsertCommentVote = `INSERT INTO comment_votes(comment_id, person_id, score, created_at) VALUES (?, ?, ?, ?)
						ON CONFLICT(comment_id, person_id) DO UPDATE SET score = excluded.score`
	sqlRecomputeCommentScore = `UPDATE comments SET score = (SELECT COALESCE(SUM(score), 0) FROM comment_votes WHERE comment_id = ?) WHERE id = ?`
)

// UpsertPostVote records one person's vote and recomputes the post's
// aggregate score in the same transaction. Re-voting with the same
// score converges, re-voting with the opposite one flips the delta.
func (db *DB) UpsertPostVote(postId, personId uuid.UUID, score int) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlUpsertPostVote, postId.String(), personId.String(), score, time.Now()); err != nil {
			return err
		}
		_, err := tx.Exec(sqlRecomputePostScore, postId.String(), postId.String())
		return err
	})
}

func (db *DB) UpsertCommentVote(commentId, personId uuid.UUID, score int) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlUpsertCommentVote, commentId.String(), personId.String(), score, time.Now()); err != nil {
			return err
		}
		_, err := tx.Exec(sqlRecomputeCommentScore, commentId.String(), commentId.String())
		return err
	})
}

// Moderation log

const (
	sqlInsertModLog         = `INSERT INTO mod_log(id, mod_person_id, target_type, target_id, reason, removed, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectModLogByTarget = `SELECT id, mod_person_id, target_type, target_id, reason, removed, created_at FROM mod_log WHERE target_id = ? ORDER BY created_at ASC`
)

func (db *DB) CreateModLogEntry(e *domain.ModLogEntry) error {
	if e.Id == uuid.Nil {
		e.Id = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		var reason sql.NullString
		if e.Reason != nil {
			reason = sql.NullString{String: *e.Reason, Valid: true}
		}
		_, err := tx.Exec(sqlInsertModLog,
			e.Id.String(), e.ModPersonId.String(), e.TargetType,
			e.TargetId.String(), reason, e.Removed, e.CreatedAt)
		return err
	})
}

func (db *DB) ModLogEntriesByTarget(targetId uuid.UUID) ([]domain.ModLogEntry, error) {
	rows, err := db.db.Query(sqlSelectModLogByTarget, targetId.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ModLogEntry
	for rows.Next() {
		var e domain.ModLogEntry
		var idStr, modStr, targetStr string
		var reason sql.NullString
		if err := rows.Scan(&idStr, &modStr, &e.TargetType, &targetStr, &reason, &e.Removed, &e.CreatedAt); err != nil {
			return entries, err
		}
		e.Id, _ = uuid.Parse(idStr)
		e.ModPersonId, _ = uuid.Parse(modStr)
		e.TargetId, _ = uuid.Parse(targetStr)
		if reason.Valid {
			r := reason.String
			e.Reason = &r
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Received activities (idempotency)

const (
	sqlInsertActivity        = `INSERT OR IGNORE INTO activities(id, activity_uri, activity_type, actor_uri, object_uri, raw_json, processed, local, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectActivityByURI   = `SELECT id, activity_uri, activity_type, actor_uri, object_uri, raw_json, processed, local, created_at FROM activities WHERE activity_uri = ?`
	sqlMarkActivityProcessed = `UPDATE activities SET processed = 1 WHERE activity_uri = ?`
)

// CreateReceivedActivity inserts the dedup record for an envelope id.
// Returns false when the id was seen before, which callers treat as a
// successful replay rather than an error.
func (db *DB) CreateReceivedActivity(a *domain.ReceivedActivity) (bool, error) {
	if a.Id == uuid.Nil {
		a.Id = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	inserted := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlInsertActivity,
			a.Id.String(), a.ActivityURI, a.ActivityType, a.ActorURI,
			a.ObjectURI, a.RawJSON, a.Processed, a.Local, a.CreatedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

func (db *DB) ReceivedActivityByURI(uri string) (*domain.ReceivedActivity, error) {
	row := db.db.QueryRow(sqlSelectActivityByURI, uri)
	var a domain.ReceivedActivity
	var idStr string
	err := row.Scan(&idStr, &a.ActivityURI, &a.ActivityType, &a.ActorURI,
		&a.ObjectURI, &a.RawJSON, &a.Processed, &a.Local, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Id, _ = uuid.Parse(idStr)
	return &a, nil
}

func (db *DB) MarkActivityProcessed(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlMarkActivityProcessed, uri)
		return err
	})
}

// Delivery queue

const (
	sqlInsertDeliveryQueue     = `INSERT INTO delivery_queue(id, inbox_uri, activity_json, sign_as_uri, attempts, next_retry_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectPendingDeliveries = `SELECT id, inbox_uri, activity_json, sign_as_uri, attempts, next_retry_at, created_at FROM delivery_queue WHERE next_retry_at <= ? ORDER BY created_at ASC LIMIT ?`
	sqlUpdateDeliveryAttempt   = `UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteDelivery          = `DELETE FROM delivery_queue WHERE id = ?`
)

func (db *DB) EnqueueDelivery(item *domain.DeliveryQueueItem) error {
	if item.Id == uuid.Nil {
		item.Id = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertDeliveryQueue,
			item.Id.String(), item.InboxURI, item.ActivityJSON,
			item.SignAsURI, item.Attempts, item.NextRetryAt, item.CreatedAt)
		return err
	})
}

func (db *DB) PendingDeliveries(limit int) ([]domain.DeliveryQueueItem, error) {
	rows, err := db.db.Query(sqlSelectPendingDeliveries, time.Now(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.DeliveryQueueItem
	for rows.Next() {
		var item domain.DeliveryQueueItem
		var idStr string
		if err := rows.Scan(&idStr, &item.InboxURI, &item.ActivityJSON,
			&item.SignAsURI, &item.Attempts, &item.NextRetryAt, &item.CreatedAt); err != nil {
			return items, err
		}
		item.Id, _ = uuid.Parse(idStr)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (db *DB) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateDeliveryAttempt, attempts, nextRetry, id.String())
		return err
	})
}

func (db *DB) DeleteDelivery(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteDelivery, id.String())
		return err
	})
}
