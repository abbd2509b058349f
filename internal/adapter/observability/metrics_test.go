package observability

import "testing"

func TestRecordHelpers(t *testing.T) {
	RecordPublish("demo")
	RecordConsume("demo")
	RecordAck("demo")
	RecordReject("demo", "max_tries")
	RecordRetry("demo")
	InflightInc("demo")
	InflightDec("demo")
	SetQueueReadyDepth("demo", 3)
	RecordSchedulerFire("nightly")
	RecordSchedulerPublishError("nightly")
	RecordCircuitBreakerStatus("broker:redis", "publish", 0)
}
