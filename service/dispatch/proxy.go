package dispatch

import (
	"context"
	"fmt"

	"github.com/viant/cascade/model/job"
	"github.com/viant/cascade/tracing"
)

// runProxy performs the remote execution of one dispatch and reports its
// outcome. A job killed meanwhile keeps the KILLED status already recorded
// and its load is left to the killer.
func (d *Dispatcher) runProxy(ctx context.Context, dispatch *Dispatch) {
	defer d.inFlight.Done()
	spec, node := dispatch.spec, dispatch.node
	ctx, span := tracing.StartSpan(ctx, "cascade.dispatch.execute", tracing.KindClient)
	span.WithAttributes(map[string]string{
		"job.id":      spec.ID(),
		"job.load":    fmt.Sprint(spec.Job.Load),
		"node.id":     node.ID,
		"instance.id": spec.Job.InstanceID,
	})
	var (
		ok  bool
		err error
	)
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("dispatch proxy panic: %v", r)
		}
		var status job.Status
		status, err = d.complete(ctx, dispatch, ok, err)
		tracing.EndSpan(span, err)
		dispatch.resolve(status, err)
	}()
	d.JobExecuting(ctx, spec)
	ok, err = d.execute(ctx, spec, node)
}

func (d *Dispatcher) execute(ctx context.Context, spec *job.Spec, node *job.ResourceNode) (bool, error) {
	if d.config.ExecuteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.ExecuteTimeout)
		defer cancel()
	}
	client, err := d.transport.Connect(ctx, node)
	if err != nil {
		return false, err
	}
	defer client.Close()
	return client.Execute(ctx, spec)
}

func (d *Dispatcher) complete(ctx context.Context, dispatch *Dispatch, ok bool, err error) (job.Status, error) {
	spec, node := dispatch.spec, dispatch.node
	if !d.registry.Complete(spec.ID()) {
		d.registry.Remove(spec.ID())
		d.logger.Info(ctx, "discarded completion of killed job", "jobID", spec.ID(), "nodeID", node.ID, "error", err)
		return job.StatusKilled, err
	}
	defer d.NotifyMonitor(ctx, node, spec)
	if ok && err == nil {
		d.JobSuccess(ctx, spec, node)
		return job.StatusSuccess, nil
	}
	if err == nil {
		err = fmt.Errorf("job %v reported failure", spec.ID())
	}
	d.logger.Warn(ctx, "job failed", "jobID", spec.ID(), "nodeID", node.ID, "error", err)
	d.JobFailure(ctx, spec, node, err)
	return job.StatusFailure, err
}
