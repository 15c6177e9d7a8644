package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"mechpower.ai/internal/persistence/snapshot"
	"mechpower.ai/internal/sim/power/geom"
	"mechpower.ai/internal/sim/power/netgraph"
	"mechpower.ai/internal/sim/power/node"
	"mechpower.ai/internal/sim/power/rotnet"
	"mechpower.ai/internal/sim/world"
)

func main() {
	var (
		snapPath = flag.String("snapshot", "", "path to .snap.zst")
		auditDir = flag.String("audit", "", "audit dir containing audit-*.jsonl.zst (optional)")
		ticks    = flag.Int("ticks", 0, "advance the rebuilt world this many ticks before reporting")
		shuffles = flag.Int("shuffles", 3, "rebuild the graph in this many random ADD orders and compare digests")
		seed     = flag.Int64("seed", 1, "shuffle seed")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d world=%s tick=%d run=%s blocks=%d networks=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Header.RunID, len(snap.Blocks), len(snap.Networks))

	w := world.New(world.WorldConfig{
		ID:                 snap.Header.WorldID,
		TickRateHz:         snap.TickRate,
		SnapshotEveryTicks: snap.SnapshotEveryTicks,
	}, nil)
	if err := w.ImportSnapshot(snap); err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}
	for i := 0; i < *ticks; i++ {
		w.StepOnce(nil)
	}

	for _, l := range partition(w.Power()) {
		fmt.Println(l)
	}
	digest := w.Digest()
	fmt.Printf("tick=%d digest=%016x\n", w.CurrentTick(), digest)

	rng := rand.New(rand.NewSource(*seed))
	for i := 0; i < *shuffles; i++ {
		got, err := rebuildShuffled(snap, rng)
		if err != nil {
			fmt.Fprintln(os.Stderr, "rebuild:", err)
			os.Exit(1)
		}
		if got != digest {
			fmt.Fprintf(os.Stderr, "order dependence: shuffle %d digest=%016x want=%016x\n", i, got, digest)
			os.Exit(1)
		}
	}
	if *shuffles > 0 {
		fmt.Printf("order check ok: %d shuffles\n", *shuffles)
	}

	if *auditDir == "" {
		return
	}
	counts, err := countAudits(*auditDir, snap.Header.Tick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "audit:", err)
		os.Exit(1)
	}
	events := make([]string, 0, len(counts))
	for e := range counts {
		events = append(events, e)
	}
	sort.Strings(events)
	for _, e := range events {
		fmt.Printf("audit %s=%d\n", e, counts[e])
	}
}

// partition renders one line per network in id order.
func partition(m *rotnet.Manager) []string {
	g := m.Graph()
	ids := g.NetworkIDs()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		net, ok := g.Network(id)
		if !ok {
			continue
		}
		d, _ := m.Dynamics(id)
		out = append(out, fmt.Sprintf("network %d members=%d torque=%g target=%g speed=%g active=%t",
			id, net.Len(), d.RequiredTorque, d.TargetSpeed, d.CurrentSpeed, d.Active))
	}
	return out
}

// rebuildShuffled adds the valid blocks of snap to a bare graph in random
// order and returns the partition digest.
func rebuildShuffled(snap snapshot.SnapshotV1, rng *rand.Rand) (uint64, error) {
	nodes := make([]*node.Node, 0, len(snap.Blocks))
	for _, b := range snap.Blocks {
		if b.Invalid {
			continue
		}
		spec, err := world.SpecFromFields(geom.PosFromArray(b.Pos), b.Kind, b.Axis, b.Faces, b.Engaged, b.Speed, b.Torque, b.Demand)
		if err != nil {
			return 0, err
		}
		n, err := node.New(spec)
		if err != nil {
			return 0, err
		}
		nodes = append(nodes, n)
	}
	rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

	m := rotnet.New(rotnet.DefaultConfig(), nil)
	for _, n := range nodes {
		if !m.PerformAction(n, netgraph.ActionAdd) {
			return 0, fmt.Errorf("block %v rejected", n.Pos())
		}
	}
	if err := m.Graph().Verify(); err != nil {
		return 0, err
	}
	return m.Graph().Digest(), nil
}

func countAudits(dir string, fromTick uint64) (map[string]int, error) {
	files, err := listAuditFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no audit files found in %s", dir)
	}
	counts := map[string]int{}
	for _, path := range files {
		if err := scanAuditFile(path, fromTick, counts); err != nil {
			return nil, err
		}
	}
	return counts, nil
}

func listAuditFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "audit-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func scanAuditFile(path string, fromTick uint64, counts map[string]int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var entry world.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if entry.Tick < fromTick {
			continue
		}
		counts[entry.Event]++
	}
	return sc.Err()
}
