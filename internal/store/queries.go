package store

// Task queries
const (
	taskColumns = `id, kind, platform_id, unit_ids, status, concurrent_limit, completed_count, failed_count,
		current_running, progress, error_message, version, created_at, started_at, completed_at`

	queryInsertTask = `
		INSERT INTO collection_tasks (id, kind, platform_id, unit_ids, status, concurrent_limit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetTask = `SELECT ` + taskColumns + ` FROM collection_tasks WHERE id = ?`

	queryUpdateTask = `
		UPDATE collection_tasks SET
			status = ?,
			concurrent_limit = ?,
			completed_count = ?,
			failed_count = ?,
			current_running = ?,
			progress = ?,
			error_message = ?,
			started_at = ?,
			completed_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`

	queryTaskExists = `SELECT count(*) FROM collection_tasks WHERE id = ?`

	queryDeleteTask = `DELETE FROM collection_tasks WHERE id = ?`

	queryListTasks = `SELECT ` + taskColumns + ` FROM collection_tasks`

	queryActivePlatformSync = `SELECT ` + taskColumns + ` FROM collection_tasks
		WHERE kind = 'platform_sync' AND platform_id = ? AND status IN ('pending', 'running')
		ORDER BY created_at LIMIT 1`
)

// Unit queries
const (
	unitColumns = `id, name, address, mac, hardware_uuid, kind, source, source_platform_id, collection_status,
		last_collected_at, hostname, vendor, model, os_type, os_version, os_kernel, os_bits, boot_type, cpu_info,
		cpu_cores, memory_total, memory_free, memory_info, disk_count, disk_total_size, network_count, vt_platform,
		vt_platform_version, device_type, is_physical, created_at, updated_at`

	queryInsertUnit = `
		INSERT INTO units (name, address, mac, hardware_uuid, kind, source, source_platform_id, collection_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	queryGetUnit = `SELECT ` + unitColumns + ` FROM units WHERE id = ?`

	queryGetUnitByAddress = `SELECT ` + unitColumns + ` FROM units WHERE address = ? ORDER BY id LIMIT 1`

	queryListUnits = `SELECT ` + unitColumns + ` FROM units`

	queryUpdateUnitIdentity = `
		UPDATE units SET
			name = ?,
			mac = ?,
			hardware_uuid = ?,
			kind = ?,
			source = ?,
			source_platform_id = ?,
			updated_at = now()
		WHERE id = ?`

	queryUpdateUnitStatus = `
		UPDATE units SET collection_status = ?, updated_at = now() WHERE id = ?`

	queryUpdateUnitStatusAt = `
		UPDATE units SET collection_status = ?, last_collected_at = ?, updated_at = now() WHERE id = ?`

	queryUpdateUnitFacts = `
		UPDATE units SET
			address = COALESCE(NULLIF(?, ''), address),
			mac = COALESCE(NULLIF(?, ''), mac),
			hardware_uuid = COALESCE(NULLIF(?, ''), hardware_uuid),
			hostname = ?,
			vendor = ?,
			model = ?,
			os_type = ?,
			os_version = ?,
			os_kernel = ?,
			os_bits = ?,
			boot_type = ?,
			cpu_info = ?,
			cpu_cores = ?,
			memory_total = ?,
			memory_free = ?,
			memory_info = ?,
			disk_count = ?,
			disk_total_size = ?,
			network_count = ?,
			vt_platform = ?,
			vt_platform_version = ?,
			device_type = ?,
			is_physical = ?,
			collection_status = ?,
			last_collected_at = ?,
			updated_at = now()
		WHERE id = ?`

	queryDeleteDisks  = `DELETE FROM unit_disks WHERE unit_id = ?`
	queryDeleteMounts = `DELETE FROM unit_mounts WHERE unit_id = ?`
	queryDeleteNICs   = `DELETE FROM unit_nics WHERE unit_id = ?`

	queryInsertDisk = `
		INSERT INTO unit_disks (unit_id, device, size, vendor, model, disk_index)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryInsertMount = `
		INSERT INTO unit_mounts (unit_id, device, mount_point, fstype, size_total, size_available, size_available_ratio)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryInsertNIC = `
		INSERT INTO unit_nics (unit_id, name, mac, active, mtu, speed, ipv4_address, ipv4_netmask, ipv4_network,
			ipv4_broadcast, ipv6_address, gateway, is_default)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryListDisks = `
		SELECT device, size, vendor, model, disk_index FROM unit_disks WHERE unit_id = ? ORDER BY disk_index, id`

	queryListMounts = `
		SELECT device, mount_point, fstype, size_total, size_available, size_available_ratio
		FROM unit_mounts WHERE unit_id = ? ORDER BY id`

	queryListNICs = `
		SELECT name, mac, active, mtu, speed, ipv4_address, ipv4_netmask, ipv4_network, ipv4_broadcast,
			ipv6_address, gateway, is_default
		FROM unit_nics WHERE unit_id = ? ORDER BY id`
)

// Detail queries
const (
	detailColumns = `id, unit_id, task_id, status, method, error_message, raw_facts, collected_at`

	queryInsertDetail = `
		INSERT INTO collection_details (unit_id, task_id, status, method, error_message, raw_facts, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryListDetailsByUnit = `SELECT ` + detailColumns + ` FROM collection_details WHERE unit_id = ? ORDER BY id`

	queryListDetailsByTask = `SELECT ` + detailColumns + ` FROM collection_details WHERE task_id = ? ORDER BY id`

	queryLatestDetail = `SELECT ` + detailColumns + ` FROM collection_details WHERE unit_id = ? ORDER BY id DESC LIMIT 1`

	queryLatestDetailForTask = `SELECT ` + detailColumns + ` FROM collection_details
		WHERE unit_id = ? AND task_id = ? ORDER BY id DESC LIMIT 1`
)

// Credentials queries
const (
	queryGetCredentials = `
		SELECT unit_id, username, password_sealed, port, key_path, created_at, updated_at
		FROM unit_credentials WHERE unit_id = ?`

	queryUpsertCredentials = `
		INSERT INTO unit_credentials (unit_id, username, password_sealed, port, key_path, updated_at)
		VALUES (?, ?, ?, ?, ?, now())
		ON CONFLICT (unit_id) DO UPDATE SET
			username = EXCLUDED.username,
			password_sealed = EXCLUDED.password_sealed,
			port = EXCLUDED.port,
			key_path = EXCLUDED.key_path,
			updated_at = now()`

	queryDeleteCredentials = `DELETE FROM unit_credentials WHERE unit_id = ?`
)

// Platform queries
const (
	platformColumns = `id, name, type, host, port, username, password_sealed, region, insecure, created_at, updated_at`

	queryInsertPlatform = `
		INSERT INTO platforms (name, type, host, port, username, password_sealed, region, insecure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	queryUpdatePlatform = `
		UPDATE platforms SET
			type = ?,
			host = ?,
			port = ?,
			username = ?,
			password_sealed = ?,
			region = ?,
			insecure = ?,
			updated_at = now()
		WHERE id = ?`

	queryGetPlatform       = `SELECT ` + platformColumns + ` FROM platforms WHERE id = ?`
	queryGetPlatformByName = `SELECT ` + platformColumns + ` FROM platforms WHERE name = ? ORDER BY id LIMIT 1`
	queryListPlatforms     = `SELECT ` + platformColumns + ` FROM platforms ORDER BY id`
)
