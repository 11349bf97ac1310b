// Package hashing — вычисление контрольных сумм содержимого архива.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"regexp"

	"ArchiveKeeper/internal/apperr"
)

// Algorithm — алгоритм дайджеста, фиксируемый в метаданных сохранности.
const Algorithm = "SHA-256"

// bufSize — размер буфера потокового чтения; память не зависит от размера файла.
const bufSize = 64 * 1024

var digestRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// DigestBytes возвращает hex SHA-256 буфера в памяти.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestReader читает r до конца и возвращает hex SHA-256 и число прочитанных байт.
func DigestReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.CopyBuffer(h, r, make([]byte, bufSize))
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// DigestFile потоково вычисляет дайджест файла.
// Недоступный путь — ошибка с кодом IO_ERROR.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeIO, err, "open %s", path)
	}
	defer f.Close()

	sum, _, err := DigestReader(f)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeIO, err, "read %s", path)
	}
	return sum, nil
}

// Verify сравнивает дайджест файла с ожидаемым.
// Несовпадение — не ошибка; ошибка возвращается только при сбое ввода-вывода.
func Verify(path, expected string) (bool, error) {
	actual, err := DigestFile(path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

// IsDigest проверяет формат дайджеста (64 hex-символа в нижнем регистре).
func IsDigest(s string) bool {
	return digestRe.MatchString(s)
}
