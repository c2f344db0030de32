package database

import (
	"context"
	"time"
)

// LinkPost associates mediaID with postID. Linking twice is a no-op.
func (d *Database) LinkPost(ctx context.Context, postID, mediaID int64, linkType string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("link_post", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if linkType == "" {
		linkType = DefaultLinkType
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO post_media (post_id, media_id, link_type, created_at) VALUES (?, ?, ?, ?)`,
		postID, mediaID, linkType, time.Now().Unix())
	return err
}

// UnlinkPost removes links between postID and mediaID. An empty linkType
// removes links of every type.
func (d *Database) UnlinkPost(ctx context.Context, postID, mediaID int64, linkType string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("unlink_post", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `DELETE FROM post_media WHERE post_id = ? AND media_id = ?`
	args := []any{postID, mediaID}
	if linkType != "" {
		query += ` AND link_type = ?`
		args = append(args, linkType)
	}

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PostMedia returns the media linked to postID that vis may see. An empty
// linkType matches every type.
func (d *Database) PostMedia(ctx context.Context, postID int64, linkType string, vis Visibility) ([]Record, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("post_media", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	sub := `SELECT media_id FROM post_media WHERE post_id = ?`
	args := []any{postID}
	if linkType != "" {
		sub += ` AND link_type = ?`
		args = append(args, linkType)
	}
	cond, visArgs := visibilityClause(vis)
	query := `SELECT ` + recordColumns + ` FROM media WHERE id IN (` + sub + `) AND ` + cond + ` ORDER BY id`
	args = append(args, visArgs...)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	recs, err := collect("PostMedia", rows)
	return recs, err
}

// MediaPosts returns the links of mediaID.
func (d *Database) MediaPosts(ctx context.Context, mediaID int64) ([]PostLink, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("media_posts", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		`SELECT post_id, media_id, link_type, created_at FROM post_media WHERE media_id = ? ORDER BY post_id`,
		mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PostLink
	for rows.Next() {
		var l PostLink
		var created int64
		if scanErr := rows.Scan(&l.PostID, &l.MediaID, &l.LinkType, &created); scanErr != nil {
			continue
		}
		l.CreatedAt = unixTime(created)
		out = append(out, l)
	}
	err = rows.Err()
	return out, err
}
