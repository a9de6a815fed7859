package telemetry

import "go.opentelemetry.io/otel/attribute"

func attrTopic(topic string) attribute.KeyValue         { return attribute.String("topic", topic) }
func attrPartition(partition int) attribute.KeyValue    { return attribute.Int("partition", partition) }
func attrOperation(operation string) attribute.KeyValue { return attribute.String("operation", operation) }
