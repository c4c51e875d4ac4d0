// Пакет archive — архив файлов выгрузки в S3-совместимом хранилище
// (AWS S3 или MinIO). Используется опционально: без бакета архив выключен.
package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config — параметры подключения к бакету.
type Config struct {
	Bucket    string
	Region    string // по умолчанию us-east-1
	Endpoint  string // необязательный, для MinIO
	PathStyle bool
	Prefix    string // префикс ключей, по умолчанию "exports"
	// AccessKeyID и SecretAccessKey необязательны: без них используется
	// стандартная цепочка AWS (переменные окружения, профиль, IMDS).
	AccessKeyID     string
	SecretAccessKey string //nolint:gosec // G101: поле структуры, не содержит секрет напрямую
}

// Info — сведения о загруженном объекте.
type Info struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	ETag   string `json:"etag,omitempty"`
}

// Store — архив выгрузок в одном бакете.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// New создаёт архив. optFns позволяют переопределить параметры клиента S3
// (например, HTTP-клиент в тестах).
func New(ctx context.Context, cfg Config, logger *slog.Logger, optFns ...func(*s3.Options)) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("не задан бакет архива")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "exports"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("загрузка конфигурации AWS: %w", err)
	}

	opts := make([]func(*s3.Options), 0, 1+len(optFns))
	opts = append(opts, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	opts = append(opts, optFns...)

	return &Store{
		client: s3.NewFromConfig(awsCfg, opts...),
		bucket: cfg.Bucket,
		prefix: prefix,
		logger: logger.With(slog.String("component", "archive")),
	}, nil
}

// Put загружает файл выгрузки под ключом {prefix}/{name}.
// Объект с тем же ключом перезаписывается, как и локальная выгрузка той же минуты.
// body должен поддерживать Seek (например, *os.File): SDK считает контрольную сумму.
func (s *Store) Put(ctx context.Context, name string, body io.Reader) (*Info, error) {
	key := path.Join(s.prefix, name)

	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("text/csv; charset=utf-8"),
	})
	if err != nil {
		return nil, fmt.Errorf("загрузка %s в бакет %s: %w", key, s.bucket, err)
	}

	s.logger.Info("Выгрузка отправлена в архив",
		slog.String("bucket", s.bucket),
		slog.String("key", key),
	)

	return &Info{
		Bucket: s.bucket,
		Key:    key,
		ETag:   aws.ToString(out.ETag),
	}, nil
}

// Bucket возвращает имя бакета.
func (s *Store) Bucket() string {
	return s.bucket
}
