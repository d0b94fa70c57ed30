// Package archive uploads finalized answer recordings to S3-compatible
// object storage so practice sessions can be reviewed later.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/vocalhq/interview-trainer/internal/eventlog"
	"github.com/vocalhq/interview-trainer/internal/types"
	"github.com/vocalhq/interview-trainer/internal/util"
)

// Config holds object storage settings for answer archival.
type Config struct {
	Enabled         bool   `json:"enabled"`
	Endpoint        string `json:"endpoint"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Prefix          string `json:"prefix"`
}

// IsConfigured returns true when the settings are complete enough to upload.
func (c Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// newS3Client creates an S3 client with static credentials.
func newS3Client(cfg Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// TestConnection verifies bucket access by uploading and deleting a probe
// object.
func TestConnection(cfg Config) error {
	if !cfg.IsConfigured() {
		return fmt.Errorf("archive storage is not configured")
	}

	client := newS3Client(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	testKey := fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano())
	testContent := []byte("interview trainer connection test")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("upload test object: %w", err)
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test object", "key", testKey, "error", err)
	}

	return nil
}

// uploadRequest is one recording queued for upload.
type uploadRequest struct {
	sessionID string
	key       string
	data      []byte
}

const (
	queueSize     = 16
	uploadTimeout = 5 * time.Minute
	maxAttempts   = 5
)

// Archiver uploads answer audio on a background worker with exponential
// retry. It is safe for concurrent use.
type Archiver struct {
	cfg      Config
	client   *s3.Client
	eventLog *eventlog.Logger

	queue  chan uploadRequest
	stopCh chan struct{}
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New returns an Archiver for the given storage settings. eventLog may be
// nil.
func New(cfg Config, eventLog *eventlog.Logger) *Archiver {
	return &Archiver{
		cfg:      cfg,
		client:   newS3Client(cfg),
		eventLog: eventLog,
		queue:    make(chan uploadRequest, queueSize),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the upload worker.
func (a *Archiver) Start() {
	a.startOnce.Do(func() {
		a.wg.Add(1)
		go a.worker()
	})
}

// Stop signals the worker, which drains queued uploads before exiting, and
// waits for it.
func (a *Archiver) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}

// QueueAnswer enqueues one finalized recording for upload. No-op when
// archival is disabled or unconfigured; a full queue drops the recording
// with a warning.
func (a *Archiver) QueueAnswer(sessionID string, turn int, mode types.RecordingMode, wav []byte) {
	if !a.cfg.Enabled || !a.cfg.IsConfigured() || len(wav) == 0 {
		return
	}

	key := a.objectKey(sessionID, turn, mode)
	select {
	case a.queue <- uploadRequest{sessionID: sessionID, key: key, data: wav}:
		slog.Info("queued recording for upload", "key", key, "bytes", len(wav))
		a.logUpload(eventlog.UploadQueued, sessionID, key, len(wav), 0, "")
	default:
		slog.Warn("upload queue full, recording dropped", "key", key)
	}
}

// objectKey builds a per-session key like
// sessions/<id>/turn-003-answer-20060102T150405.wav.
func (a *Archiver) objectKey(sessionID string, turn int, mode types.RecordingMode) string {
	prefix := a.cfg.Prefix
	if prefix == "" {
		prefix = "sessions"
	}
	if sessionID == "" {
		sessionID = "unassigned"
	}
	return fmt.Sprintf("%s/%s/turn-%03d-%s-%s.wav",
		prefix, sessionID, turn, mode, time.Now().UTC().Format("20060102T150405"))
}

// worker processes the upload queue, draining remaining items on shutdown.
func (a *Archiver) worker() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopCh:
			for {
				select {
				case req := <-a.queue:
					a.upload(req)
				default:
					return
				}
			}
		case req := <-a.queue:
			a.upload(req)
		}
	}
}

// upload attempts one object upload with exponential backoff between
// attempts. Recordings that still fail after maxAttempts are abandoned.
func (a *Archiver) upload(req uploadRequest) {
	backoff := util.NewBackoff(time.Second, 30*time.Second)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := a.putObject(req)
		if err == nil {
			slog.Info("upload completed", "key", req.key, "attempt", attempt)
			a.logUpload(eventlog.UploadCompleted, req.sessionID, req.key, len(req.data), attempt-1, "")
			return
		}

		slog.Error("upload failed", "key", req.key, "attempt", attempt, "error", err)
		if attempt == maxAttempts {
			a.logUpload(eventlog.UploadFailed, req.sessionID, req.key, len(req.data), attempt-1, err.Error())
			return
		}

		select {
		case <-a.stopCh:
			a.logUpload(eventlog.UploadFailed, req.sessionID, req.key, len(req.data), attempt-1, "shutdown before retry")
			return
		case <-time.After(backoff.Next()):
		}
	}
}

func (a *Archiver) putObject(req uploadRequest) error {
	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		uploadTimeout,
		errors.New("archive upload timeout"),
	)
	defer cancel()

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.cfg.Bucket),
		Key:           aws.String(req.key),
		Body:          bytes.NewReader(req.data),
		ContentLength: aws.Int64(int64(len(req.data))),
		ContentType:   aws.String("audio/wav"),
	})
	return err
}

func (a *Archiver) logUpload(eventType eventlog.EventType, sessionID, key string, size, retries int, errMsg string) {
	if a.eventLog == nil {
		return
	}
	if err := a.eventLog.LogUpload(eventType, sessionID, eventlog.UploadDetails{
		Key:        key,
		SizeBytes:  size,
		RetryCount: retries,
		Error:      errMsg,
	}); err != nil {
		slog.Warn("failed to log upload event", "error", err)
	}
}
