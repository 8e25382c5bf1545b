package database

import (
	"database/sql"
	"fmt"
	"time"
)

func (db *PgRepository) CreateSession(params CreateSessionParams) (Session, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Session{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO sessions (code, name, owner_id, version, created_at, updated_at) "+
			"VALUES ($1, $2, $3, 0, $4, $5) RETURNING id, code, name, owner_id, version, created_at, updated_at",
		params.Code,
		params.Name,
		params.OwnerId,
		time.Now().UTC(),
		time.Now().UTC(),
	)

	var session Session
	err = res.Scan(
		&session.Id,
		&session.Code,
		&session.Name,
		&session.OwnerId,
		&session.Version,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return Session{}, err
	}

	// every session starts with a shared list
	_, err = tx.Exec(
		"INSERT INTO lists (session_id, name, created_at) VALUES ($1, $2, $3)",
		session.Id,
		params.ListName,
		time.Now().UTC(),
	)
	if err != nil {
		return Session{}, err
	}

	if err = tx.Commit(); err != nil {
		return Session{}, err
	}

	return session, err
}

func (db *PgRepository) GetSessionByCode(code string) (Session, error) {
	row := db.conn.QueryRow(
		"SELECT id, code, name, owner_id, version, created_at, updated_at FROM sessions "+
			"WHERE code = $1 LIMIT 1",
		code,
	)

	var session Session
	err := row.Scan(
		&session.Id,
		&session.Code,
		&session.Name,
		&session.OwnerId,
		&session.Version,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	return session, err
}

func (db *PgRepository) SessionCodeExists(code string) bool {
	res := db.conn.QueryRow(
		"SELECT id FROM sessions WHERE code = $1 LIMIT 1",
		code,
	)

	var id int
	err := res.Scan(&id)

	return err == nil
}

func (db *PgRepository) DeleteSession(id int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("DELETE FROM tasks WHERE session_id = $1", id)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM lists WHERE session_id = $1", id)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM sessions WHERE id = $1", id)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgRepository) UpdateSessionVersion(sessionId, version int) error {
	_, err := db.conn.Exec(
		"UPDATE sessions SET version = $1, updated_at = $2 WHERE id = $3",
		version,
		time.Now().UTC(),
		sessionId,
	)

	return err
}

func (db *PgRepository) GetListsBySession(sessionId int) ([]List, error) {
	query := `
		SELECT
				l.id AS list_id,
				l.name AS list_name,
				l.created_at AS list_created_at,
				t.id,
				t.title,
				t.content,
				t.is_completed
		FROM lists l
		LEFT JOIN tasks t ON l.id = t.list_id
		WHERE l.session_id = $1
		ORDER BY l.id, t.id;
`

	rows, err := db.conn.Query(query, sessionId)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lists with tasks: %w", err)
	}
	defer rows.Close()

	var lists []List
	listIndex := make(map[int]int)
	for rows.Next() {
		var (
			listId        int
			listName      string
			listCreatedAt time.Time
			taskId        sql.NullInt64
			title         sql.NullString
			content       sql.NullString
			isCompleted   sql.NullBool
		)

		err := rows.Scan(
			&listId,
			&listName,
			&listCreatedAt,
			&taskId,
			&title,
			&content,
			&isCompleted,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		idx, ok := listIndex[listId]
		if !ok {
			lists = append(lists, List{
				Id:        listId,
				SessionId: sessionId,
				Name:      listName,
				Tasks:     make([]Task, 0),
				CreatedAt: listCreatedAt,
			})
			idx = len(lists) - 1
			listIndex[listId] = idx
		}

		if taskId.Valid {
			lists[idx].Tasks = append(lists[idx].Tasks, Task{
				Id:          int(taskId.Int64),
				SessionId:   sessionId,
				ListId:      listId,
				Title:       title.String,
				Content:     content.String,
				IsCompleted: isCompleted.Bool,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lists, nil
}

func (db *PgRepository) CreateList(params CreateListParams) (List, error) {
	res := db.conn.QueryRow(
		"INSERT INTO lists (session_id, name, created_at) "+
			"VALUES ($1, $2, $3) RETURNING id, session_id, name, created_at",
		params.SessionId,
		params.Name,
		time.Now().UTC(),
	)

	var list List
	err := res.Scan(
		&list.Id,
		&list.SessionId,
		&list.Name,
		&list.CreatedAt,
	)

	return list, err
}

func (db *PgRepository) DeleteList(listId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("DELETE FROM tasks WHERE list_id = $1", listId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM lists WHERE id = $1", listId)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgRepository) CreateTask(params CreateTaskParams) (Task, error) {
	res := db.conn.QueryRow(
		"INSERT INTO tasks (session_id, list_id, title, content, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, session_id, list_id, title, content, is_completed, created_at",
		params.SessionId,
		params.ListId,
		params.Title,
		params.Content,
		time.Now().UTC(),
	)

	var task Task
	err := res.Scan(
		&task.Id,
		&task.SessionId,
		&task.ListId,
		&task.Title,
		&task.Content,
		&task.IsCompleted,
		&task.CreatedAt,
	)

	return task, err
}

func (db *PgRepository) UpdateTaskCompleted(taskId int, isCompleted bool) error {
	_, err := db.conn.Exec(
		"UPDATE tasks SET is_completed = $1 WHERE id = $2",
		isCompleted,
		taskId,
	)

	return err
}

func (db *PgRepository) DeleteTask(taskId int) error {
	_, err := db.conn.Exec("DELETE FROM tasks WHERE id = $1", taskId)

	return err
}
