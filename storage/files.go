package storage

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"duochat/models"
)

// Record stores a received file under the current counter value, returns
// that id and advances the counter. The counter advances even when the
// insert fails so ids stay aligned with the order files arrived in.
func (s *Store) Record(name string, data []byte) (int, error) {
	if name == "" {
		return 0, errors.New("filename is required")
	}
	if data == nil {
		data = []byte{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	_, err := s.db.Exec(
		`INSERT INTO received_files (
			file_id,
			filename,
			data,
			filesize,
			checksum,
			received_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		name,
		data,
		len(data),
		Checksum(data),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return id, fmt.Errorf("insert received file %d: %w", id, err)
	}

	return id, nil
}

// Skip advances the counter without recording anything and returns the
// id that was consumed.
func (s *Store) Skip() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	return id
}

// NextID returns the id the next received file will get.
func (s *Store) NextID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

// Lookup fetches a received file by id.
func (s *Store) Lookup(id int) (models.ReceivedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT
			file_id,
			filename,
			data,
			checksum,
			received_at
		FROM received_files
		WHERE file_id = ?`,
		id,
	)

	var file models.ReceivedFile
	if err := row.Scan(&file.ID, &file.Name, &file.Data, &file.Checksum, &file.ReceivedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ReceivedFile{}, ErrNotFound
		}
		return models.ReceivedFile{}, fmt.Errorf("get received file %d: %w", id, err)
	}
	file.Size = int64(len(file.Data))

	return file, nil
}

// Count returns how many files have been recorded.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM received_files`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count received files: %w", err)
	}
	return count, nil
}

// List returns every recorded file without its content, oldest first.
func (s *Store) List() ([]models.ReceivedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT file_id, filename, filesize, checksum, received_at
		FROM received_files
		ORDER BY received_at ASC, file_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list received files: %w", err)
	}
	defer rows.Close()

	files := make([]models.ReceivedFile, 0)
	for rows.Next() {
		var (
			file models.ReceivedFile
			size int64
		)
		if err := rows.Scan(&file.ID, &file.Name, &size, &file.Checksum, &file.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan received file: %w", err)
		}
		file.Size = size
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate received files: %w", err)
	}

	return files, nil
}

// Checksum returns the hex BLAKE2b-256 digest of data.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
