// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"kb-vectorizer/internal/config"
	"kb-vectorizer/pkg/log"
	"kb-vectorizer/pkg/tasks"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second
)

// TaskRunner 执行一个向量化任务，使 Kafka 消费者与具体的批处理实现解耦。
type TaskRunner interface {
	RunTask(ctx context.Context, task tasks.VectorizeTask) error
}

// Producer 将向量化任务发送到 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	log.Info("[Kafka] 生产者初始化成功")
	return &Producer{writer: w}
}

// Name 返回提交方式的名称。
func (p *Producer) Name() string { return "kafka" }

// Submit 发送一个向量化任务到 Kafka。
func (p *Producer) Submit(ctx context.Context, task tasks.VectorizeTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.OrganizationID),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer 从 Kafka 读取向量化任务并逐个执行。
type Consumer struct {
	reader      *kafka.Reader
	rdb         *redis.Client
	runner      TaskRunner
	maxAttempts int64
	retryDelay  time.Duration
}

// NewConsumer 创建消费者。失败的任务在原地重试，次数记录在 Redis 中，达到 MaxAttempts 后提交 offset 放弃该任务。
func NewConsumer(cfg config.KafkaConfig, rdb *redis.Client, runner TaskRunner) *Consumer {
	maxAttempts := int64(cfg.MaxAttempts)
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, rdb: rdb, runner: runner, maxAttempts: maxAttempts, retryDelay: defaultRetryDelay}
}

// Run 持续消费任务直到 ctx 被取消。
func (c *Consumer) Run(ctx context.Context) error {
	log.Infof("[Kafka] 消费者已启动，正在监听主题 '%s'", c.reader.Config().Topic)
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("[Kafka] 关闭消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("[Kafka] 消费者已停止")
				return nil
			}
			return fmt.Errorf("从 Kafka 读取消息失败: %w", err)
		}
		log.Infof("[Kafka] 收到消息: partition %d, offset %d", m.Partition, m.Offset)

		if !c.handle(ctx, m.Value) {
			// 只有关闭时才不提交，offset 留给下一次启动重新拉取
			log.Info("[Kafka] 消费者已停止, 当前消息未提交")
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Errorf("[Kafka] 提交消息 offset 失败: %v", err)
		}
	}
}

// handle 处理一条消息，返回是否应提交 offset。
// FetchMessage 不会重新投递未提交的消息，因此失败的任务在这里原地重试，直到成功或达到 maxAttempts。
// 每次尝试前先在 Redis 中计数，进程在运行中崩溃的尝试也会被计入；只有 ctx 取消时返回 false。
func (c *Consumer) handle(ctx context.Context, value []byte) bool {
	var task tasks.VectorizeTask
	if err := json.Unmarshal(value, &task); err != nil {
		log.Errorf("[Kafka] 无法解析消息: %v, value: %s", err, string(value))
		return true
	}

	attemptsKey := fmt.Sprintf("kafka:attempts:vectorize:%s", task.TriggerID)
	var local int64
	for {
		local++
		attempts, err := c.rdb.Incr(ctx, attemptsKey).Result()
		if err != nil {
			// Redis 不可用时退化为本地计数
			log.Warnf("[Kafka] 记录尝试次数失败, 使用本地计数: %v", err)
			attempts = local
		} else {
			_ = c.rdb.Expire(ctx, attemptsKey, 24*time.Hour).Err()
		}
		if attempts > c.maxAttempts {
			log.Errorf("[Kafka] 向量化任务已尝试 %d 次, 提交 offset 放弃: triggerID=%s", c.maxAttempts, task.TriggerID)
			return true
		}

		log.Infof("[Kafka] 开始处理向量化任务: triggerID=%s, organization=%q, reason=%s, attempt=%d/%d",
			task.TriggerID, task.OrganizationID, task.Reason, attempts, c.maxAttempts)
		err = c.runner.RunTask(ctx, task)
		if err == nil {
			log.Infof("[Kafka] 向量化任务处理成功: triggerID=%s", task.TriggerID)
			if err := c.rdb.Del(ctx, attemptsKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
				log.Warnf("[Kafka] 清理失败计数失败: %v", err)
			}
			return true
		}
		log.Errorf("[Kafka] 向量化任务失败: triggerID=%s, attempt=%d, Error: %v", task.TriggerID, attempts, err)
		if ctx.Err() != nil {
			return false
		}
		if attempts >= c.maxAttempts {
			log.Errorf("[Kafka] 向量化任务多次失败(>=%d)，提交 offset 终止重试: triggerID=%s", c.maxAttempts, task.TriggerID)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retryDelay * time.Duration(attempts)):
		}
	}
}
