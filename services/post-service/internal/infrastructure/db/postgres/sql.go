package postgres

const (
	insertPostSQL = `
INSERT INTO posts (id, user_id, content, media_ids, created_at)
VALUES ($1, $2, $3, $4, $5)`

	selectPostColumns = `id, user_id, content, media_ids, created_at`

	getPostSQL = `SELECT ` + selectPostColumns + ` FROM posts WHERE id = $1`

	getPostForUpdateSQL = `SELECT ` + selectPostColumns + ` FROM posts WHERE id = $1 FOR UPDATE`

	deletePostSQL = `DELETE FROM posts WHERE id = $1`

	countPostsSQL = `SELECT COUNT(*) FROM posts`

	listPostsSQL = `
SELECT ` + selectPostColumns + `
FROM posts
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2`
)
