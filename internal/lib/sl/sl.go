// Package sl содержит вспомогательные функции для формирования
// структурированных полей логгера slog.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и текстом ошибки.
//
// Пример:
//
//	log.Error("failed to apply transition", sl.Err(err))
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// UID возвращает slog.Attr с ключом "account_uid". Единый ключ позволяет
// связывать записи биллинга и туров по аккаунту.
func UID(accountUID string) slog.Attr {
	return slog.Attr{
		Key:   "account_uid",
		Value: slog.StringValue(accountUID),
	}
}
