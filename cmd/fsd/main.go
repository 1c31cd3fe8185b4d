// fsd serves a file system over TCP, stored on a simulated block device.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/fs"
	"github.com/mit-pdos/go-blockfs/server"
	"github.com/mit-pdos/go-blockfs/util"
)

func openDisk(backend string, path string, bds string, geo disk.Geometry) (disk.Disk, error) {
	switch backend {
	case "mem":
		return disk.NewMemDisk(geo), nil
	case "file":
		return disk.NewFileDisk(path, geo)
	case "goose":
		return disk.NewPageFileDisk(path, geo)
	case "remote":
		return disk.DialRemoteDisk(bds)
	}
	return nil, fmt.Errorf("unknown backend %q", backend)
}

func main() {
	addr := flag.String("addr", "localhost:12356", "address to serve clients on")
	backend := flag.String("backend", "file", "block device: mem, file, goose or remote")
	path := flag.String("disk", "disk.img", "backing file for the file and goose backends")
	bds := flag.String("bds", "localhost:12355", "disk server address for the remote backend")
	ncyl := flag.Uint64("cyl", 64, "cylinders of a local disk")
	nsec := flag.Uint64("sec", 16, "sectors per cylinder of a local disk")
	debug := flag.Uint64("debug", util.Debug, "debug level")
	flag.Parse()

	util.Debug = *debug

	geo := disk.Geometry{Cylinders: *ncyl, Sectors: *nsec}
	d, err := openDisk(*backend, *path, *bds, geo)
	if err != nil {
		log.Fatalf("open %s disk: %v", *backend, err)
	}
	defer d.Close()

	fsys, err := fs.Open(d)
	if err != nil {
		log.Fatalf("load file system: %v", err)
	}
	if fsys.Formatted() {
		sb := fsys.Super()
		nfree, err := fsys.FreeBlocks()
		if err != nil {
			log.Fatalf("read bitmap: %v", err)
		}
		log.Printf("volume: %d blocks, %d free, %d inodes", sb.Size, nfree,
			sb.NInodes)
	} else {
		log.Printf("volume not formatted; log in as uid 1 and run f")
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Printf("serving on %v", ln.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()
	if err := server.MkServer(fsys).Serve(ctx, ln); err != nil {
		log.Printf("serve: %v", err)
	}
	if err := d.Barrier(); err != nil {
		log.Printf("barrier: %v", err)
	}
}
