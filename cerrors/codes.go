// Package cerrors provides the structured error codes and error type used
// throughout config-server. It extends Go's standard error handling with a
// stable, machine-readable code and an HTTP status mapping.
package cerrors

// Code represents a specific error condition raised by config-server.
// Codes are string-based for debuggability and natural JSON serialization.
type Code string

const (
	// Validation errors (400).

	CodeInvalidNamespace     Code = "INVALID_NAMESPACE"
	CodeInvalidPath          Code = "INVALID_PATH"
	CodeInvalidAppName       Code = "INVALID_APP_NAME"
	CodeInvalidEmail         Code = "INVALID_EMAIL"
	CodeInvalidCommitID      Code = "INVALID_COMMIT_ID"
	CodeInvalidContent       Code = "INVALID_CONTENT"
	CodeInvalidYAML          Code = "INVALID_YAML"
	CodeInvalidCommitMessage Code = "INVALID_COMMIT_MESSAGE"
	CodeMissingCommitID      Code = "MISSING_COMMIT_ID"
	CodeInvalidActionType    Code = "INVALID_ACTION_TYPE"

	// Namespace errors (404/409/500).

	CodeNamespaceNotFound       Code = "NAMESPACE_NOT_FOUND"
	CodeNamespaceAlreadyExists  Code = "NAMESPACE_ALREADY_EXISTS"
	CodeNamespaceCreationFailed Code = "NAMESPACE_CREATION_FAILED"

	// Config file errors (404/409/500).

	CodeConfigFileNotFound       Code = "CONFIG_FILE_NOT_FOUND"
	CodeConfigFileAlreadyExists  Code = "CONFIG_FILE_ALREADY_EXISTS"
	CodeConfigFileReadFailed     Code = "CONFIG_FILE_READ_FAILED"
	CodeConfigFileUpdateFailed   Code = "CONFIG_FILE_UPDATE_FAILED"
	CodeConfigFileCreationFailed Code = "CONFIG_FILE_CREATION_FAILED"

	// Concurrency errors (409).

	CodeConfigConflict Code = "CONFIG_CONFLICT"

	// Vault errors (404/500).

	CodeEncryptionFailed        Code = "ENCRYPTION_FAILED"
	CodeDecryptionFailed        Code = "DECRYPTION_FAILED"
	CodeKeyLoadFailed           Code = "KEY_LOAD_FAILED"
	CodeKeyInitializationFailed Code = "KEY_INITIALIZATION_FAILED"
	CodeVaultFileNotFound       Code = "VAULT_FILE_NOT_FOUND"
	CodeVaultOperationFailed    Code = "VAULT_OPERATION_FAILED"
	CodeSecretNotFound          Code = "SECRET_NOT_FOUND"

	// Git errors (500).

	CodeGitInitFailed             Code = "GIT_INIT_FAILED"
	CodeGitCommitFailed           Code = "GIT_COMMIT_FAILED"
	CodeGitLogFailed              Code = "GIT_LOG_FAILED"
	CodeGitDiffFailed             Code = "GIT_DIFF_FAILED"
	CodeGitRepositoryAccessFailed Code = "GIT_REPOSITORY_ACCESS_FAILED"
	CodeGitOperationFailed        Code = "GIT_OPERATION_FAILED"

	// Generic.

	CodeInternal Code = "INTERNAL_ERROR"
)

// HTTPStatus returns the status code the management API maps a Code to.
// Codes absent from the table fall back to 500, matching the spec's
// "any uncaught failure becomes INTERNAL_ERROR" rule.
func (c Code) HTTPStatus() int {
	if status, ok := httpStatusByCode[c]; ok {
		return status
	}
	return 500
}

var httpStatusByCode = map[Code]int{
	CodeInvalidNamespace:     400,
	CodeInvalidPath:          400,
	CodeInvalidAppName:       400,
	CodeInvalidEmail:         400,
	CodeInvalidCommitID:      400,
	CodeInvalidContent:       400,
	CodeInvalidYAML:          400,
	CodeInvalidCommitMessage: 400,
	CodeMissingCommitID:      400,
	CodeInvalidActionType:    400,

	CodeNamespaceNotFound:       404,
	CodeNamespaceAlreadyExists:  409,
	CodeNamespaceCreationFailed: 500,

	CodeConfigFileNotFound:       404,
	CodeConfigFileAlreadyExists:  409,
	CodeConfigFileReadFailed:     500,
	CodeConfigFileUpdateFailed:   500,
	CodeConfigFileCreationFailed: 500,

	CodeConfigConflict: 409,

	CodeEncryptionFailed:        500,
	CodeDecryptionFailed:        500,
	CodeKeyLoadFailed:           500,
	CodeKeyInitializationFailed: 500,
	CodeVaultFileNotFound:       404,
	CodeVaultOperationFailed:    500,
	CodeSecretNotFound:          404,

	CodeGitInitFailed:             500,
	CodeGitCommitFailed:           500,
	CodeGitLogFailed:              500,
	CodeGitDiffFailed:             500,
	CodeGitRepositoryAccessFailed: 500,
	CodeGitOperationFailed:        500,

	CodeInternal: 500,
}
