package postgres

const (
	qCreateMessage = `
		INSERT INTO chat_messages (sender, receiver, body, sent, read, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text, sender, receiver, body, sent, read, created_at, updated_at`

	// newest first; the repository flips each page to chronological order
	qHistory = `
		SELECT id::text, sender, receiver, body, sent, read, created_at, updated_at
		FROM chat_messages
		WHERE LEAST(sender, receiver) = LEAST($1, $2)
		  AND GREATEST(sender, receiver) = GREATEST($1, $2)
		  AND (
		    $3::timestamptz IS NULL
		    OR created_at < $3
		    OR (created_at = $3 AND id < $4::uuid)
		  )
		ORDER BY created_at DESC, id DESC
		LIMIT $5`

	qConversations = `
		SELECT DISTINCT ON (other)
		       other, id::text, sender, receiver, body, sent, read, created_at, updated_at, unread
		FROM (
		    SELECT CASE WHEN sender = $1 THEN receiver ELSE sender END AS other,
		           m.*,
		           COUNT(*) FILTER (WHERE receiver = $1 AND NOT read)
		               OVER (PARTITION BY CASE WHEN sender = $1 THEN receiver ELSE sender END) AS unread
		    FROM chat_messages m
		    WHERE sender = $1 OR receiver = $1
		) t
		ORDER BY other, created_at DESC, id DESC`

	qMarkRead = `
		UPDATE chat_messages
		SET read = true, updated_at = now()
		WHERE id = ANY($1::uuid[]) AND receiver = $2 AND NOT read`

	qProfile = `SELECT identity, display_name, avatar_url FROM profiles WHERE identity = $1`
)
