package devstub

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/crypto/bcrypt"

	"github.com/kpcai/examfront/internal/model"
)

// SeedAdmin ensures an admin account exists. Does nothing when the email is
// already registered.
func SeedAdmin(store *Store, email, password string) error {
	existing, err := store.GetUserByEmail(email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if _, err := store.CreateUser(email, string(hash), "", model.UserRoleAdmin); err != nil {
		return err
	}
	slog.Info("seeded admin user", "email", email)
	return nil
}

// ImportQuestions loads questions from a JSON file. The file's hash is
// recorded so re-running the server does not duplicate questions; edit the
// file to trigger a re-import.
func ImportQuestions(store *Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read questions file: %w", err)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	name := filepath.Base(path)

	prev, err := store.GetImportedFileHash(name)
	if err != nil {
		return err
	}
	if prev == hash {
		slog.Debug("questions file unchanged, skipping import", "file", name)
		return nil
	}

	var questions []model.QuestionCreate
	if err := json.Unmarshal(data, &questions); err != nil {
		return fmt.Errorf("parse questions file: %w", err)
	}

	for _, q := range questions {
		if _, err := store.InsertQuestion(q); err != nil {
			return fmt.Errorf("insert question %d: %w", q.QuestionNumber, err)
		}
	}
	if err := store.SetImportedFileHash(name, hash); err != nil {
		return err
	}
	slog.Info("imported questions", "file", name, "count", len(questions))
	return nil
}
