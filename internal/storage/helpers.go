package storage

import "github.com/minio/minio-go/v7"

// isNotFound reports whether err is an S3 missing-object response.
func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
