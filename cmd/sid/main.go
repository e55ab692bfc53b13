// Command sid is the Storage Instantiation Daemon entrypoint: it parses
// its command line, dispatches into worker mode when re-exec'd, and
// otherwise daemonizes (unless --foreground) and runs a root resource
// owning the event loop for the lifetime of the process.
package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/prajnoha/sid/sidcfg"
	"github.com/prajnoha/sid/sidevent"
	"github.com/prajnoha/sid/sidlog"
	"github.com/prajnoha/sid/sidres"
	"github.com/prajnoha/sid/sidsvc"
	"github.com/prajnoha/sid/sidwrk"
)

func main() {
	if os.Getenv(sidwrk.EnvReexecSentinel) != "" {
		runAsWorker()
		return
	}

	cfg, err := sidcfg.Parse(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.Version {
		fmt.Println("sid (storage instantiation daemon)")
		return
	}

	if cfg.Verbose {
		os.Setenv("SID_VERBOSE", "1")
	}

	if !cfg.Foreground {
		if err := becomeDaemon(os.Args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, "sid: daemonize:", err)
			os.Exit(1)
		}
	}

	target := sidlog.TargetStandard
	if cfg.Journal {
		target = sidlog.TargetJournal
	}
	log, err := sidlog.New(target, cfg.Verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sid: logger init:", err)
		os.Exit(1)
	}

	if err := run(log); err != nil {
		log.Error("sid", "fatal", sidlog.F("error", err.Error()))
		os.Exit(1)
	}
}

// run builds the root resource, its owned event loop, the service-link
// set, a worker-control pool for the bundled demonstration worker, and
// blocks in the loop until a termination signal arrives.
func run(log sidlog.Logger) error {
	svcLinks := buildServiceLinks(log)

	root, err := sidres.Create(sidres.Params{
		Type:         &sidres.Type{Name: "sid", WithEventLoop: true},
		ServiceLinks: svcLinks,
	})
	if err != nil {
		return err
	}
	root.SetLogger(log)

	loop, err := sidevent.New(log)
	if err != nil {
		return err
	}
	root.SetLoop(loop)

	if _, err := sidevent.CreateSignalEventSource(root, []os.Signal{syscall.SIGTERM, syscall.SIGINT}, func(os.Signal) {
		loop.Exit()
	}); err != nil {
		return err
	}

	wc, err := sidwrk.NewWorkerControl(root, "echo", echoWorkerKey, sidwrk.Config{
		Type:         sidwrk.WorkerInternal,
		ChannelSpecs: echoChannelSpecs(),
	})
	if err != nil {
		return err
	}

	if link := systemdLinkOf(svcLinks); link != nil {
		link.NotifyReady()
	}

	_, err = sidwrk.GetNewWorker(wc, "", cloneableLinks(svcLinks))
	if err != nil {
		log.Warn("sid", "failed to start demonstration worker", sidlog.F("error", err.Error()))
	}

	return loop.Run()
}

func buildServiceLinks(log sidlog.Logger) []sidres.ServiceLinkDef {
	var links []sidres.ServiceLinkDef
	if link, err := sidsvc.NewSystemdLink(); err == nil && link != nil {
		links = append(links, sidres.ServiceLinkDef{Name: "systemd", Link: link, Cloneable: link.Cloneable()})
	}
	loggerLink := sidsvc.NewLoggerLink(log, "sid")
	links = append(links, sidres.ServiceLinkDef{Name: "logger", Link: loggerLink, Cloneable: loggerLink.Cloneable()})
	return links
}

func systemdLinkOf(defs []sidres.ServiceLinkDef) sidsvc.ServiceLink {
	for _, d := range defs {
		if d.Name != "systemd" {
			continue
		}
		if link, ok := d.Link.(sidsvc.ServiceLink); ok {
			return link
		}
	}
	return nil
}

func cloneableLinks(defs []sidres.ServiceLinkDef) []sidsvc.ServiceLink {
	var out []sidsvc.ServiceLink
	for _, d := range defs {
		if !d.Cloneable {
			continue
		}
		if link, ok := d.Link.(sidsvc.ServiceLink); ok {
			out = append(out, link)
		}
	}
	return out
}

// runAsWorker is the re-exec dispatch target: workers always log to
// standard error regardless of the parent's --journal choice, since a
// worker inherits the parent's stdout/stderr rather than its own journal
// handle. Its records carry the "c <pid>" prefix. It hands off to the
// worker-control runtime once its logger is ready.
func runAsWorker() {
	log, err := sidlog.New(sidlog.TargetStandard, os.Getenv("SID_VERBOSE") != "")
	if err != nil {
		os.Exit(1)
	}
	log = log.With(fmt.Sprintf("c %d", os.Getpid()))
	if err := sidwrk.RunWorker(log); err != nil {
		log.Error("worker", "worker exited with error", sidlog.F("error", err.Error()))
		os.Exit(1)
	}
}
