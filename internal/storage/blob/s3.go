// s3.go — реализация Store поверх S3-совместимого хранилища (AWS S3, MinIO).
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Config — параметры подключения к S3-совместимому хранилищу.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	// PathStyle — адресация bucket в пути (нужна для MinIO).
	PathStyle bool
	// HTTPClient — опционально, для тестов.
	HTTPClient *http.Client
}

// S3Store — Store поверх aws-sdk-go.
type S3Store struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	logger   *slog.Logger
}

// NewS3Store создаёт S3Store. Сетевых обращений не выполняет.
func NewS3Store(cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(cfg.PathStyle),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.HTTPClient != nil {
		awsCfg.HTTPClient = cfg.HTTPClient
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: создание сессии: %v", ErrStorage, err)
	}

	return &S3Store{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		logger:   logger.With(slog.String("component", "s3_blob_store")),
	}, nil
}

// EnsureContainer создаёт bucket, если он отсутствует.
func (s *S3Store) EnsureContainer(ctx context.Context, container string) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(container),
	})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(container),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeBucketAlreadyOwnedByYou ||
			aerr.Code() == s3.ErrCodeBucketAlreadyExists) {
			return nil
		}
		return fmt.Errorf("%w: создание bucket %s: %v", ErrStorage, container, err)
	}

	s.logger.Info("Bucket создан", slog.String("container", container))
	return nil
}

// Put потоково загружает объект через s3manager (multipart для больших тел).
func (s *S3Store) Put(ctx context.Context, container, key string, r io.Reader, size int64, contentType string) error {
	cr := &countingReader{r: r}

	input := &s3manager.UploadInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
		Body:   cr,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return fmt.Errorf("%w: загрузка %s/%s: %v", ErrStorage, container, key, err)
	}

	if size >= 0 && cr.n != size {
		// Объект уже записан, но не соответствует заявленному размеру.
		if derr := s.Delete(context.WithoutCancel(ctx), container, key); derr != nil {
			s.logger.Error("Не удалось удалить объект с неверным размером",
				slog.String("container", container),
				slog.String("key", key),
				slog.String("error", derr.Error()),
			)
		}
		return fmt.Errorf("%w: %w: %s/%s: передано %d, заявлено %d",
			ErrStorage, ErrSizeMismatch, container, key, cr.n, size)
	}

	s.logger.Debug("Объект записан",
		slog.String("container", container),
		slog.String("key", key),
		slog.Int64("size", cr.n),
	)
	return nil
}

// Delete удаляет объект. NoSuchKey и NotFound считаются успехом.
func (s *S3Store) Delete(ctx context.Context, container, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: удаление %s/%s: %v", ErrStorage, container, key, err)
	}
	return nil
}

// SignedURL возвращает presigned GET URL. Подпись вычисляется локально.
func (s *S3Store) SignedURL(_ context.Context, container, key string, ttl time.Duration) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	u, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("%w: подпись ссылки %s/%s: %v", ErrStorage, container, key, err)
	}
	return u, nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}

// readyTimeout — таймаут проверки готовности.
const readyTimeout = 3 * time.Second

// ReadinessChecker — проверка доступности bucket.
// Реализует интерфейс handlers.ReadinessChecker.
type ReadinessChecker struct {
	store     *S3Store
	container string
}

// NewReadinessChecker создаёт проверку готовности S3-хранилища.
func NewReadinessChecker(store *S3Store, container string) *ReadinessChecker {
	return &ReadinessChecker{store: store, container: container}
}

// CheckReady выполняет HeadBucket.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	_, err := c.store.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.container),
	})
	if err != nil {
		return "fail", fmt.Sprintf("bucket %s недоступен: %v", c.container, err)
	}
	return "ok", "bucket доступен"
}
