package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden        ErrCode = "FORBIDDEN"
	ErrPermissionDenied ErrCode = "PERMISSION_DENIED"
	ErrUserAccessOnly   ErrCode = "USER_ACCESS_ONLY"
	ErrStaffAccessOnly  ErrCode = "STAFF_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Paper-specific ────────────────────────────────────────────────
	ErrUnknownDifficulty     ErrCode = "UNKNOWN_DIFFICULTY"
	ErrInvalidQuestionCount  ErrCode = "INVALID_QUESTION_COUNT"
	ErrInsufficientQuestions ErrCode = "INSUFFICIENT_QUESTIONS"
	ErrAlreadyCompleted      ErrCode = "ALREADY_COMPLETED"
	ErrAlreadyGraded         ErrCode = "ALREADY_GRADED"
	ErrInvalidAnswers        ErrCode = "INVALID_ANSWERS"
	ErrInvalidSubmission     ErrCode = "INVALID_SUBMISSION"
	ErrNotSubjective         ErrCode = "NOT_SUBJECTIVE"
	ErrScoreOutOfRange       ErrCode = "SCORE_OUT_OF_RANGE"
	ErrPaperNotSubmitted     ErrCode = "PAPER_NOT_SUBMITTED"
	ErrPaperCompleted        ErrCode = "PAPER_COMPLETED"
	ErrCorruptedPaper        ErrCode = "INVALID_PAPER_STRUCTURE"
	ErrLibraryReload         ErrCode = "LIBRARY_RELOAD_FAILED"
	ErrHybridBank            ErrCode = "HYBRID_BANK_READONLY"
	ErrInvalidQuestion       ErrCode = "INVALID_QUESTION"
	ErrQuestionIndex         ErrCode = "QUESTION_INDEX_OUT_OF_RANGE"
	ErrExportFormat          ErrCode = "INVALID_EXPORT_FORMAT"

	// ─── Settings ──────────────────────────────────────────────────────
	ErrInvalidSettings ErrCode = "INVALID_SETTINGS"
	ErrSettingsPersist ErrCode = "SETTINGS_PERSIST_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrPermissionDenied:
		return "Izin ditolak."
	case ErrUserAccessOnly:
		return "Sumber daya ini terbatas untuk peserta."
	case ErrStaffAccessOnly:
		return "Sumber daya ini terbatas untuk staf."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrConflict:
		return "Sumber daya sudah ada."

	// ─── Paper-specific ────────────────────────────────────────────────
	case ErrUnknownDifficulty:
		return "Tingkat kesulitan tidak dikenal."
	case ErrInvalidQuestionCount:
		return "Jumlah soal minimal 1."
	case ErrInsufficientQuestions:
		return "Soal yang tersedia tidak cukup untuk tingkat kesulitan ini."
	case ErrAlreadyCompleted:
		return "Lembar soal ini sudah selesai."
	case ErrAlreadyGraded:
		return "Lembar soal ini sudah dinilai."
	case ErrInvalidAnswers:
		return "Format jawaban tidak valid."
	case ErrInvalidSubmission:
		return "Jawaban tidak lengkap atau memuat soal yang tidak ada pada lembar ini."
	case ErrNotSubjective:
		return "Soal ini tidak dinilai secara manual."
	case ErrScoreOutOfRange:
		return "Nilai berada di luar rentang soal."
	case ErrPaperNotSubmitted:
		return "Lembar soal belum dikumpulkan."
	case ErrPaperCompleted:
		return "Lembar soal sudah selesai dinilai."
	case ErrCorruptedPaper:
		return "Struktur lembar soal tersimpan tidak valid."
	case ErrLibraryReload:
		return "Gagal memuat ulang bank soal."
	case ErrHybridBank:
		return "Tingkat kesulitan campuran tidak memiliki bank soal sendiri."
	case ErrInvalidQuestion:
		return "Soal tidak valid untuk bank soal."
	case ErrQuestionIndex:
		return "Nomor soal di luar rentang bank soal."
	case ErrExportFormat:
		return "Format ekspor tidak didukung. Gunakan csv atau xlsx."

	// ─── Settings ──────────────────────────────────────────────────────
	case ErrInvalidSettings:
		return "Pengaturan tidak valid."
	case ErrSettingsPersist:
		return "Gagal menyimpan pengaturan."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
