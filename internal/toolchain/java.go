package toolchain

import (
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"
)

// classpathEntries lists the checkout-relative jars and class directories
// every Buck JVM invocation needs, in load order.
var classpathEntries = []string{
	"src",
	"build/abi_processor/classes",
	"build/classes",
	"build/dx_classes",
	"lib/args4j-2.0.28.jar",
	"lib/ddmlib-22.5.3.jar",
	"lib/guava-17.0.jar",
	"lib/ini4j-0.5.2.jar",
	"lib/jackson-annotations-2.0.5.jar",
	"lib/jackson-core-2.0.5.jar",
	"lib/jackson-databind-2.0.5.jar",
	"lib/jsr305.jar",
	"lib/nailgun-server-0.9.2-SNAPSHOT.jar",
	"lib/sdklib.jar",
	"third-party/java/asm/asm-debug-all-4.1.jar",
	"third-party/java/astyanax/astyanax-cassandra-1.56.38.jar",
	"third-party/java/astyanax/astyanax-core-1.56.38.jar",
	"third-party/java/astyanax/astyanax-thrift-1.56.38.jar",
	"third-party/java/astyanax/cassandra-1.2.3.jar",
	"third-party/java/astyanax/cassandra-thrift-1.2.3.jar",
	"third-party/java/astyanax/commons-cli-1.1.jar",
	"third-party/java/astyanax/commons-codec-1.2.jar",
	"third-party/java/astyanax/commons-lang-2.6.jar",
	"third-party/java/astyanax/high-scale-lib-1.1.2.jar",
	"third-party/java/astyanax/joda-time-2.2.jar",
	"third-party/java/astyanax/libthrift-0.7.0.jar",
	"third-party/java/astyanax/log4j-1.2.16.jar",
	"third-party/java/astyanax/slf4j-api-1.7.2.jar",
	"third-party/java/astyanax/slf4j-log4j12-1.7.2.jar",
	"third-party/java/closure-templates/soy-2012-12-21-no-guava.jar",
	"third-party/java/gson/gson-2.2.4.jar",
	"third-party/java/eclipse/org.eclipse.core.contenttype_3.4.200.v20130326-1255.jar",
	"third-party/java/eclipse/org.eclipse.core.jobs_3.5.300.v20130429-1813.jar",
	"third-party/java/eclipse/org.eclipse.core.resources_3.8.101.v20130717-0806.jar",
	"third-party/java/eclipse/org.eclipse.core.runtime_3.9.100.v20131218-1515.jar",
	"third-party/java/eclipse/org.eclipse.equinox.common_3.6.200.v20130402-1505.jar",
	"third-party/java/eclipse/org.eclipse.equinox.preferences_3.5.100.v20130422-1538.jar",
	"third-party/java/eclipse/org.eclipse.jdt.core_3.9.2.v20140114-1555.jar",
	"third-party/java/eclipse/org.eclipse.osgi_3.9.1.v20140110-1610.jar",
	"third-party/java/dd-plist/dd-plist.jar",
	"third-party/java/jetty/jetty-all-9.0.4.v20130625.jar",
	"third-party/java/jetty/servlet-api.jar",
	"third-party/java/xz-java-1.3/xz-1.3.jar",
	"third-party/java/commons-compress/commons-compress-1.8.1.jar",
}

// resourceProperties maps buck.<key> system properties to checkout-relative
// resource paths baked into every invocation.
var resourceProperties = map[string]string{
	"testrunner_classes":    "build/testrunner/classes",
	"abi_processor_classes": "build/abi_processor/classes",
	"path_to_emma_jar":      "third-party/java/emma-2.0.5312/out/emma-2.0.5312.jar",
	"path_to_asm_jar":       "third-party/java/asm/asm-debug-all-4.1.jar",
	"logging_config_file":   "config/logging.properties",
	"path_to_python_interp": "bin/jython",
	"path_to_buck_py":       "src/com/facebook/buck/parser/buck.py",

	"path_to_compile_asset_catalogs_py": "src/com/facebook/buck/apple/compile_asset_catalogs.py",

	"path_to_compile_asset_catalogs_build_phase_sh": "src/com/facebook/buck/apple/compile_asset_catalogs_build_phase.sh",

	"path_to_intellij_py":    "src/com/facebook/buck/command/intellij.py",
	"path_to_jacoco_jars":    "third-party/java/jacoco-0.6.4/out",
	"path_to_static_content": "webserver/static",
	"path_to_pex":            "src/com/facebook/buck/python/pex.py",
	"quickstart_origin_dir":  "src/com/facebook/buck/cli/quickstart/android",
	"dx":                     "third-party/java/dx-from-kitkat/etc/dx",
	"android_agent_path":     "assets/android/agent.apk",
}

// JVMInfo carries the repository facts stamped into each JVM invocation.
// Filled by the dispatcher so this package stays independent of the git
// layer.
type JVMInfo struct {
	VersionUID      string
	GitCommit       string
	CommitTimestamp int64
	Dirty           bool
	BuckdDir        string
	DebugMode       bool
	ProjectArgs     []string // .buckjavaargs passthrough
	ExtraArgs       string   // BUCK_EXTRA_JAVA_ARGS passthrough
}

var java8Pattern = regexp.MustCompile(`java version "1\.8\..*`)

// isJava8 probes the installed JVM version once per invocation.
func isJava8() bool {
	out, err := exec.Command("java", "-version").CombinedOutput()
	if err != nil {
		return false
	}
	lines := strings.SplitN(strings.TrimSpace(string(out)), "\n", 2)
	return java8Pattern.MatchString(lines[0])
}

// JavaArgs assembles the JVM flags shared by the one-shot CLI and the
// daemon. Ordering is stable so invocations are reproducible.
func (h *Home) JavaArgs(info JVMInfo) []string {
	var args []string
	if !isJava8() {
		args = append(args, "-XX:MaxPermSize=256m")
	}
	args = append(args,
		"-Xmx1000m",
		"-Djava.awt.headless=true",
		"-Djava.util.logging.config.class=com.facebook.buck.log.LogConfig",
		"-Dbuck.test_util_no_tests_dir=true",
		fmt.Sprintf("-Dbuck.git_commit=%s", info.GitCommit),
		fmt.Sprintf("-Dbuck.git_commit_timestamp=%d", info.CommitTimestamp),
		fmt.Sprintf("-Dbuck.version_uid=%s", info.VersionUID),
		fmt.Sprintf("-Dbuck.git_dirty=%d", boolToInt(info.Dirty)),
		fmt.Sprintf("-Dbuck.buckd_dir=%s", info.BuckdDir),
		fmt.Sprintf("-Dbuck.buck_dir=%s", h.Dir),
		fmt.Sprintf("-Dlog4j.configuration=file:%s", h.Join("config/log4j.properties")),
	)

	keys := make([]string, 0, len(resourceProperties))
	for key := range resourceProperties {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args = append(args, fmt.Sprintf("-Dbuck.%s=%s", key, h.Join(resourceProperties[key])))
	}

	if info.DebugMode {
		args = append(args, "-agentlib:jdwp=transport=dt_socket,server=y,suspend=y,address=8888")
	}
	args = append(args, info.ProjectArgs...)
	if info.ExtraArgs != "" {
		args = append(args, strings.Fields(info.ExtraArgs)...)
	}
	return args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
