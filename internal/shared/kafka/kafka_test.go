package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestBrokers(t *testing.T) {
	got := Brokers(" a:9092, ,b:9092 ")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("Brokers = %v", got)
	}
}

func TestWriterKeepsKeyOnOnePartition(t *testing.T) {
	w := NewWriter("localhost:9092", "wager_credit_retry")
	defer w.Close()
	if _, ok := w.Balancer.(*kafka.Hash); !ok {
		t.Fatalf("balancer = %T, want *kafka.Hash", w.Balancer)
	}

	partitions := []int{0, 1, 2, 3, 4, 5}
	msg := kafka.Message{Key: []byte("wager-1")}
	first := w.Balancer.Balance(msg, partitions...)
	for i := 0; i < 10; i++ {
		if p := w.Balancer.Balance(msg, partitions...); p != first {
			t.Fatalf("attempt %d went to partition %d, first went to %d", i, p, first)
		}
	}
}
