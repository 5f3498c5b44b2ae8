package task

// Environment variable names injected into every payload.
const (
	PilotIDEnvVar     = "PILOTX_PILOT_ID"
	TaskIDEnvVar      = "PILOTX_TASK_ID"
	SchedulerIPEnvVar = "DASK_SCHEDULER_IP"
)
